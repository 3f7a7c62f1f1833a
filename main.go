// Command follower-snapshot collects follower counts into a Drive spreadsheet.
package main

import "github.com/JakeFAU/follower-snapshot/cmd"

func main() {
	cmd.Execute()
}
