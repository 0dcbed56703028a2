package mcp

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"inframe/internal/safeio"
)

const (
	watchWSWriteWait = 10 * time.Second
	watchWSPongWait  = 60 * time.Second
	watchWSPingEvery = (watchWSPongWait * 9) / 10

	watchPollEvery = time.Second
)

var watchWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type watchWSOutbound struct {
	Type       string `json:"type"`
	Path       string `json:"path,omitempty"`
	Appended   string `json:"appended,omitempty"`
	SizeBytes  int64  `json:"size_bytes,omitempty"`
	ModifiedAt string `json:"modified_at,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Watcher pushes cache-file updates to websocket subscribers. Each
// connection polls independently so a slow client cannot stall others.
type Watcher struct {
	fs        *safeio.SafeFS
	file      string
	pollEvery time.Duration
}

func NewWatcher(fs *safeio.SafeFS, file string) *Watcher {
	return &Watcher{fs: fs, file: file, pollEvery: watchPollEvery}
}

// HandleWS upgrades the request and streams appended cache content
// until the client goes away.
func (w *Watcher) HandleWS(rw http.ResponseWriter, req *http.Request) {
	file := w.file
	if q := req.URL.Query().Get("path"); q != "" {
		file = q
	}

	conn, err := watchWSUpgrader.Upgrade(rw, req, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(watchWSPongWait)); err != nil {
		log.Printf("watch ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(watchWSPongWait))
	})

	// Reader goroutine drains control frames and detects disconnects.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	writeCh := make(chan watchWSOutbound, 32)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(watchWSPingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(watchWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(watchWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	pushWatchWS(writeCh, watchWSOutbound{Type: "subscribed", Path: file})
	w.pollLoop(ctx, file, writeCh)
	cancel()
	<-writerDone
}

func (w *Watcher) pollLoop(ctx context.Context, file string, writeCh chan<- watchWSOutbound) {
	var lastSize int64 = -1
	every := w.pollEvery
	if every <= 0 {
		every = watchPollEvery
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		info, err := w.fs.Stat(file)
		if err != nil {
			// Cache file may not exist until the first description lands.
			continue
		}
		size := info.Size()
		if size == lastSize {
			continue
		}
		data, err := w.fs.ReadFile(file)
		if err != nil {
			pushWatchWS(writeCh, watchWSOutbound{Type: "error", Path: file, Message: err.Error()})
			continue
		}
		out := watchWSOutbound{
			Type:       "update",
			Path:       file,
			SizeBytes:  size,
			ModifiedAt: info.ModTime().UTC().Format(time.RFC3339),
		}
		if lastSize >= 0 && size > lastSize && lastSize <= int64(len(data)) {
			out.Appended = string(data[lastSize:])
		} else {
			// First poll or a rewrite; send the whole document.
			out.Appended = string(data)
		}
		lastSize = size
		pushWatchWS(writeCh, out)
	}
}

func pushWatchWS(ch chan<- watchWSOutbound, out watchWSOutbound) {
	select {
	case ch <- out:
	default:
	}
}
