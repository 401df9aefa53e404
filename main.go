package main

import (
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"runtime/debug"

	"github.com/chronomq/tapmq/cmd"
)

// https://goreleaser.com/environment/
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// More aggressive GC - an unbounded backlog should not also hoard freed memory
	if os.Getenv("GOGC") == "" {
		log.Println("Applying default GC tuning")
		debug.SetGCPercent(5)
	}
	go func() {
		log.Println(http.ListenAndServe(":6060", nil))
	}()
	cmd.SetBuildInfo(version, date, commit)
	cmd.Execute()
}
