package main

import "tele-sticker-search/cmd"

func main() {
	cmd.Execute()
}
