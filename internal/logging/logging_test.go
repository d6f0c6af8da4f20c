package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNew_Prod_Writes_JSON(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	// Given a prod logger
	log := NewWithWriter(&buf, "prod", "info")

	// When a record is written
	log.Info("hub.client_registered", "conn_id", "c1")

	// Then it is one JSON object carrying the attributes
	var rec map[string]any
	req.NoError(json.Unmarshal(buf.Bytes(), &rec))
	req.Equal("hub.client_registered", rec["msg"])
	req.Equal("c1", rec["conn_id"])
}

func TestNew_Dev_Writes_Text(t *testing.T) {
	req := require.New(t)
	var buf bytes.Buffer

	log := NewWithWriter(&buf, "dev", "debug")
	log.Debug("router.join", "nickname", "alice")

	out := buf.String()
	req.True(strings.HasPrefix(out, "time="))
	req.Contains(out, "msg=router.join")
	req.Contains(out, "nickname=alice")
}

func TestNew_Level(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantDebug bool
		wantWarn  bool
	}{
		{name: "debug", level: "debug", wantDebug: true, wantWarn: true},
		{name: "warn", level: "warn", wantDebug: false, wantWarn: true},
		{name: "unknown falls back to info", level: "chatty", wantDebug: false, wantWarn: true},
		{name: "empty falls back to info", level: "", wantDebug: false, wantWarn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			var buf bytes.Buffer
			log := NewWithWriter(&buf, "prod", tt.level)

			log.Debug("debug.record")
			req.Equal(tt.wantDebug, strings.Contains(buf.String(), "debug.record"))

			log.Warn("warn.record")
			req.Equal(tt.wantWarn, strings.Contains(buf.String(), "warn.record"))
		})
	}
}
