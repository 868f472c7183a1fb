// Package main is the entry point for the lightapi server.
package main

func main() {
	Execute()
}
