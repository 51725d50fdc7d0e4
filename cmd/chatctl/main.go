// chatctl is a small terminal client for a chatrelay server, built on the
// client SDK. It can list threads, show one thread, and send a message while
// printing the streamed response as it arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"chatrelay/pkg/client"
	"chatrelay/pkg/logger"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage:
  chatctl [-server URL] threads                 list threads
  chatctl [-server URL] show <thread-id>        print a thread
  chatctl [-server URL] send [-thread id] MSG   send a message, stream the reply
  chatctl [-server URL] delete <thread-id>      delete a thread
`)
	os.Exit(2)
}

func main() {
	server := flag.String("server", "http://localhost:8080", "chatrelay server URL")
	thread := flag.String("thread", "", "conversation id to continue (send only)")
	timeout := flag.Duration("timeout", 30*time.Second, "stream ceiling")
	flag.Parse()

	logger.Init()

	args := flag.Args()
	if len(args) == 0 {
		usage()
	}

	c := client.New(*server)
	c.StreamTimeout = *timeout
	ctx := context.Background()

	switch args[0] {
	case "threads":
		threads, err := c.ListThreads(ctx)
		if err != nil {
			fatal(err)
		}
		for _, t := range threads {
			fmt.Printf("%s  %s  (updated %s)\n", t.ID, t.Title, t.UpdatedAt.Format(time.RFC3339))
		}
	case "show":
		if len(args) < 2 {
			usage()
		}
		t, err := c.GetThread(ctx, args[1])
		if err != nil {
			fatal(err)
		}
		fmt.Printf("# %s\n", t.Title)
		for _, m := range t.Messages {
			fmt.Printf("[%s] %s\n", m.Role, m.Content)
		}
	case "send":
		if len(args) < 2 {
			usage()
		}
		send(ctx, c, *thread, args[1])
	case "delete":
		if len(args) < 2 {
			usage()
		}
		if err := c.DeleteThread(ctx, args[1]); err != nil {
			fatal(err)
		}
		fmt.Println("deleted", args[1])
	default:
		usage()
	}
}

func send(ctx context.Context, c *client.Client, threadID, content string) {
	rec := client.NewReconciler()
	if threadID != "" {
		rec.SetConversationID(threadID)
	}
	c.Reconciler = rec
	// print deltas as they stream in
	c.OnEvent = func(ev client.StreamEvent) {
		if ev.Kind == client.EventDelta {
			fmt.Print(ev.Frame.Content)
		}
	}

	convID, err := c.StreamChat(ctx, content)
	fmt.Println()
	if err != nil {
		fatal(err)
	}
	fmt.Println("conversation:", convID)
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "chatctl: %v\n", err)
	os.Exit(1)
}
