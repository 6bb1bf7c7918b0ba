package main

import (
	"context"
	"fmt"
	"os"

	"github.com/lovi-cloud/keagw"
)

func main() {
	err := keagw.Run(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "%+v\n", err)
		os.Exit(1)
	}
}
