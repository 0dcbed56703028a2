// Command contextd serves the recorded context cache to coding agents,
// over stdio (for MCP-style subprocess wiring) or HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"inframe/internal/config"
	"inframe/internal/mcp"
	"inframe/internal/safeio"
)

func main() {
	transport := flag.String("transport", "stdio", "stdio or http")
	port := flag.String("port", "", "http listen address (overrides PORT)")
	cacheDir := flag.String("cache-dir", "", "context cache directory (overrides INFRAME_CACHE_DIR)")
	flag.Parse()

	if err := run(*transport, *port, *cacheDir); err != nil {
		log.Fatalf("contextd: %v", err)
	}
}

func run(transport, port, cacheDir string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cacheDir == "" {
		cacheDir = cfg.CacheDir
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return err
	}
	fs, err := safeio.New(cacheDir)
	if err != nil {
		return err
	}
	safeio.SetDefault(fs)

	host := mcp.Host{
		CacheFS:     fs,
		DefaultFile: time.Now().Format("20060102"),
	}
	reg := mcp.NewRegistry()
	mcp.RegisterDefaultTools(reg, host)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch transport {
	case "stdio":
		log.Printf("serving context tools on stdio (cache dir %s)", cacheDir)
		return mcp.ServeStdio(ctx, reg, os.Stdin, os.Stdout)
	case "http":
		addr := cfg.Port
		if port != "" {
			addr = port
			if !strings.HasPrefix(addr, ":") {
				addr = ":" + addr
			}
		}
		watcher := mcp.NewWatcher(fs, host.DefaultFile)
		srv := &http.Server{
			Addr:    addr,
			Handler: h2c.NewHandler(mcp.Handler(reg, watcher), &http2.Server{}),
		}
		go func() {
			<-ctx.Done()
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutCancel()
			_ = srv.Shutdown(shutCtx)
		}()
		log.Printf("serving context tools on %s (cache dir %s)", addr, cacheDir)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	default:
		return fmt.Errorf("unknown transport %q (want stdio or http)", transport)
	}
}
