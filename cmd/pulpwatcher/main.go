package main

import "pulp-price-forecast/internal/cli"

func main() {
	cli.Execute()
}
