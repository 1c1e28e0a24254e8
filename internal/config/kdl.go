package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// loadKDLFile parses a .cxxbridge.kdl document into a partially-populated
// Config (zero fields mean "not set, defer to default/base"). Returns
// (nil, nil) when the file does not exist, matching lci's LoadKDL
// "absence is not an error" convention.
func loadKDLFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	doc, err := kdl.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg := &Config{}
	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "log":
			for _, cn := range n.Children {
				switch nodeName(cn) {
				case "level":
					if s, ok := firstStringArg(cn); ok {
						cfg.LogLevel = s
					}
				case "file_path":
					if s, ok := firstStringArg(cn); ok {
						cfg.LogFilePath = s
					}
				case "json_format":
					if b, ok := firstBoolArg(cn); ok {
						cfg.LogJSONFormat = b
					}
				case "file_unique_per_pid":
					if b, ok := firstBoolArg(cn); ok {
						cfg.LogFileUniquePerPID = b
					}
				}
			}
		case "analyzer_binary_path":
			if s, ok := firstStringArg(n); ok {
				cfg.AnalyzerBinaryPath = s
			}
		case "scan_root":
			if s, ok := firstStringArg(n); ok {
				cfg.ScanRoot = s
			}
		case "scan_depth":
			if v, ok := firstIntArg(n); ok {
				cfg.ScanDepth = v
			}
		case "indexing_wait_timeout_secs":
			if v, ok := firstIntArg(n); ok {
				cfg.IndexingWaitTimeout = time.Duration(v) * time.Second
			}
		}
	}
	return cfg, nil
}

func nodeName(n *document.Node) string {
	if n == nil || n.Name == nil {
		return ""
	}
	return n.Name.NodeNameString()
}

func firstStringArg(n *document.Node) (string, bool) {
	if len(n.Arguments) == 0 {
		return "", false
	}
	if s, ok := n.Arguments[0].Value.(string); ok {
		return s, true
	}
	return "", false
}

func firstBoolArg(n *document.Node) (bool, bool) {
	if len(n.Arguments) == 0 {
		return false, false
	}
	if b, ok := n.Arguments[0].Value.(bool); ok {
		return b, true
	}
	return false, false
}

func firstIntArg(n *document.Node) (int, bool) {
	if len(n.Arguments) == 0 {
		return 0, false
	}
	switch v := n.Arguments[0].Value.(type) {
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		if iv, err := strconv.Atoi(v); err == nil {
			return iv, true
		}
	}
	return 0, false
}
