// The main package for the jobscraper executable.
package main

import "github.com/JakeFAU/jobscraper/cmd"

func main() {
	cmd.Execute()
}
