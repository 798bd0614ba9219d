package command

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/url"
	"sync"

	"github.com/kilianp07/ocppbridge/core/delivery"
	coremetrics "github.com/kilianp07/ocppbridge/core/metrics"
	"github.com/kilianp07/ocppbridge/core/model"
)

func bytesReader(b []byte) io.Reader { return bytes.NewReader(b) }

type fakePoster struct {
	mu        sync.Mutex
	getPath   string
	getQuery  url.Values
	getResp   delivery.Response
	getErr    error
	postPath  string
	postBody  string
	postCalls int
}

func (f *fakePoster) PostJSON(_ context.Context, path string, payload any, _ string) (delivery.Response, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postCalls++
	f.postPath = path
	f.postBody = string(raw)
	return delivery.Response{"ok": true}, nil
}

func (f *fakePoster) GetJSON(_ context.Context, path string, q url.Values) (delivery.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getPath = path
	f.getQuery = q
	return f.getResp, f.getErr
}

type collector struct{ cmds []model.RemoteCommand }

func (c *collector) Publish(cmd model.RemoteCommand) { c.cmds = append(c.cmds, cmd) }

type commandSink struct {
	coremetrics.NopSink
	events []coremetrics.CommandEvent
}

func (s *commandSink) RecordCommand(ev coremetrics.CommandEvent) error {
	s.events = append(s.events, ev)
	return nil
}
