// chatrelay-probe is a tiny liveness prober: it polls a chatrelay server's
// health endpoint and exits non-zero when the server stops answering. Meant
// for container healthchecks and smoke tests.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/valyala/fasthttp"
)

func main() {
	target := flag.String("target", "http://localhost:8080", "base URL of the chatrelay server")
	path := flag.String("path", "/healthz", "probe path (/healthz or /readyz)")
	interval := flag.Duration("interval", 0, "poll interval; 0 probes once and exits")
	timeout := flag.Duration("timeout", 3*time.Second, "per-request timeout")
	flag.Parse()

	c := &fasthttp.Client{
		ReadTimeout:  *timeout,
		WriteTimeout: *timeout,
	}
	url := *target + *path

	probe := func() error {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(url)
		if err := c.DoTimeout(req, resp, *timeout); err != nil {
			return err
		}
		if resp.StatusCode() != fasthttp.StatusOK {
			return fmt.Errorf("status %d: %s", resp.StatusCode(), resp.Body())
		}
		fmt.Printf("%s ok: %s\n", *path, resp.Body())
		return nil
	}

	if *interval <= 0 {
		if err := probe(); err != nil {
			fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
			os.Exit(1)
		}
		return
	}
	for {
		if err := probe(); err != nil {
			fmt.Fprintf(os.Stderr, "probe failed: %v\n", err)
			os.Exit(1)
		}
		time.Sleep(*interval)
	}
}
