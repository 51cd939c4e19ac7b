// Copyright © 2018 One Concern

package main

import (
	"github.com/oneconcern/gibsync/cmd/gibsync/cmd"
)

func main() {
	cmd.Execute()
}
