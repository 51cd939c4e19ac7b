package cmd

import (
	"strings"

	"github.com/fatih/color"
	"github.com/oneconcern/gibsync/pkg/ibgib"
	"github.com/oneconcern/gibsync/pkg/space"
)

// exit code of unsuccessful commands
const exitFailed = 1

var (
	success = color.New(color.FgGreen).SprintFunc()
	failure = color.New(color.FgRed).SprintFunc()
	warning = color.New(color.FgYellow).SprintFunc()
	faint   = color.New(color.Faint).SprintFunc()
)

func printList(title string, addrs []string) {
	if len(addrs) == 0 {
		return
	}
	infoLogger.Printf("%s:", faint(title))
	for _, addr := range addrs {
		infoLogger.Printf("  %s", addr)
	}
}

// printResult reports the outcome of a command, exiting when it failed
func printResult(res *space.Result) {
	if res.Data.Success {
		infoLogger.Println(success("success"))
	} else {
		infoLogger.Println(failure("failed"))
	}
	for _, e := range res.Data.Errors {
		infoLogger.Printf("%s %s", failure("error:"), e)
	}
	for _, w := range res.Data.Warnings {
		infoLogger.Printf("%s %s", warning("warning:"), w)
	}
	printList("addrs", res.Data.Addrs)
	printList("already have", res.Data.AddrsAlreadyHave)
	printList("not found", res.Data.AddrsNotFound)
	printList("errored", res.Data.AddrsErrored)

	if !res.Data.Success {
		wrapFatalWithCodef(exitFailed, "command failed: %s", strings.Join(res.Data.Errors, "; "))
	}
}

func printNode(n *ibgib.Node) {
	buf, err := ibgib.Encode(n)
	if err != nil {
		wrapFatalln("encode node", err)
		return
	}
	infoLogger.Println(string(buf))
}
