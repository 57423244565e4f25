// Command client is a minimal line-oriented driver for the wot grid
// server, standing in for the out-of-scope terminal UI: each stdin
// line of the form "x y char" sets a cell, and "x y" alone deletes it.
// Received chunks are rendered to stdout on change.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Garmelon/wot/internal/clientpool"
	"github.com/Garmelon/wot/internal/clientside"
	"github.com/Garmelon/wot/internal/config"
	"github.com/Garmelon/wot/internal/grid"
	"github.com/Garmelon/wot/internal/observability"
	"github.com/Garmelon/wot/internal/validation"
	"github.com/Garmelon/wot/internal/wstransport"
)

const version = "0.1.0"

func main() {
	cfg := config.DefaultClientConfig()

	flag.StringVar(&cfg.DialAddr, "addr", cfg.DialAddr, "server WebSocket URL")
	flag.StringVar(&cfg.LogFile, "logfile", cfg.LogFile, "path to redirect structured logs (default: stdout)")
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		host := args[0]
		port := "8000"
		if len(args) > 1 {
			port = args[1]
		}
		cfg.DialAddr = fmt.Sprintf("ws://%s:%s/grid", host, port)
		if len(args) > 2 {
			cfg.LogFile = args[2]
		}
	}

	if err := validation.ValidateStringNonEmpty(cfg.DialAddr); err != nil {
		fmt.Fprintln(os.Stderr, "wot-client:", err)
		os.Exit(1)
	}

	out := os.Stdout
	if cfg.LogFile != "" {
		f, err := os.Create(cfg.LogFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, "wot-client:", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	log := observability.NewLogger("wot-client", version, out)

	ctx := context.Background()
	conn, err := wstransport.Dial(ctx, cfg.DialAddr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "wot-client: connect failed:", err)
		os.Exit(1)
	}
	defer conn.Close()

	reconciler := clientside.New(conn, log)
	var p *clientpool.Pool
	p = clientpool.New(reconciler, func() { renderLoaded(p) }, cfg.SaveDelay)
	reconciler.Attach(p)

	go func() {
		if err := reconciler.Run(); err != nil {
			log.Warn("connection closed: " + err.Error())
			os.Exit(0)
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		x, err1 := strconv.Atoi(fields[0])
		y, err2 := strconv.Atoi(fields[1])
		if err1 != nil || err2 != nil {
			continue
		}
		pos, _ := grid.PosOf(x, y)
		p.Lock()
		p.LoadList([]grid.ChunkPos{pos})
		c := p.GetOrCreate(pos)
		if c != nil {
			if len(fields) >= 3 {
				r := []rune(fields[2])
				c.Set(x-pos.X*grid.Width, y-pos.Y*grid.Height, r[0])
			} else {
				c.Delete(x-pos.X*grid.Width, y-pos.Y*grid.Height)
			}
		}
		p.Unlock()
		p.SaveChangesDelayed()
	}

	time.Sleep(cfg.SaveDelay + 50*time.Millisecond)
	p.SaveChanges()
}

func renderLoaded(p *clientpool.Pool) {
	p.Lock()
	defer p.Unlock()
	for _, pos := range p.Positions() {
		c := p.Get(pos)
		if c == nil {
			continue
		}
		fmt.Printf("--- chunk %s ---\n", pos)
		for _, line := range c.AsDiff().Lines() {
			fmt.Println(line)
		}
	}
}
