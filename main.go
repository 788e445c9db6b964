package main

import (
	"os"

	"github.com/zeek-r/bookflow-gateway/internal/app"
)

func main() {
	os.Exit(app.Run())
}
