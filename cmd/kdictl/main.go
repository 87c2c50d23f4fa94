// Command kdictl is a minimal HTTP client for a running tabletserver,
// issuing the same insert/erase/scan requests cmd/tabletserver's HTTP
// API accepts. Grounded on dd0wney-graphdb/cmd/api-demo/main.go's
// raw net/http + encoding/json request style, stripped to the plain
// request/response shapes instead of that file's demo narration.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "insert":
		runInsert(os.Args[2:])
	case "erase":
		runErase(os.Args[2:])
	case "scan":
		runScan(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: kdictl <insert|erase|scan> [flags]")
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

func postJSON(addr, path string, body, out any) error {
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(body); err != nil {
		return err
	}
	resp, err := httpClient.Post(addr+path, "application/json", buf)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s: %s: %s", path, resp.Status, string(msg))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func runInsert(args []string) {
	fs := flag.NewFlagSet("insert", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8070", "tabletserver address")
	table := fs.String("table", "", "table name")
	row := fs.String("row", "", "row key")
	col := fs.String("col", "", "column (family:qualifier)")
	ts := fs.Int64("ts", 0, "timestamp")
	value := fs.String("value", "", "cell value")
	fs.Parse(args)

	req := map[string]any{
		"table": *table, "row": []byte(*row), "column": []byte(*col),
		"timestamp": *ts, "value": []byte(*value),
	}
	if err := postJSON(*addr, "/v1/insert", req, nil); err != nil {
		fmt.Fprintln(os.Stderr, "insert:", err)
		os.Exit(1)
	}
	fmt.Println("ok")
}

func runErase(args []string) {
	fs := flag.NewFlagSet("erase", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8070", "tabletserver address")
	table := fs.String("table", "", "table name")
	row := fs.String("row", "", "row key")
	col := fs.String("col", "", "column (family:qualifier)")
	ts := fs.Int64("ts", 0, "timestamp")
	fs.Parse(args)

	req := map[string]any{
		"table": *table, "row": []byte(*row), "column": []byte(*col), "timestamp": *ts,
	}
	if err := postJSON(*addr, "/v1/erase", req, nil); err != nil {
		fmt.Fprintln(os.Stderr, "erase:", err)
		os.Exit(1)
	}
	fmt.Println("ok")
}

func runScan(args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8070", "tabletserver address")
	table := fs.String("table", "", "table name")
	rowLo := fs.String("rowLo", "", "row range lower bound (inclusive)")
	rowHi := fs.String("rowHi", "", "row range upper bound (exclusive)")
	batch := fs.Int64("batch", 100, "cells per scanMore batch")
	fs.Parse(args)

	var rows []map[string]any
	if *rowLo != "" || *rowHi != "" {
		rows = append(rows, map[string]any{
			"lo": []byte(*rowLo), "hi": []byte(*rowHi),
			"loInclusive": true, "hiInclusive": false,
		})
	}

	openReq := map[string]any{
		"table":     *table,
		"predicate": map[string]any{"rows": rows},
	}
	var openResp struct {
		ScanID string `json:"scanId"`
	}
	if err := postJSON(*addr, "/v1/scan/open", openReq, &openResp); err != nil {
		fmt.Fprintln(os.Stderr, "scan open:", err)
		os.Exit(1)
	}

	for {
		moreReq := map[string]any{"scanId": openResp.ScanID, "maxCells": *batch}
		var moreResp struct {
			Cells []struct {
				Row       []byte `json:"Row"`
				Column    []byte `json:"Column"`
				Timestamp int64  `json:"Timestamp"`
				Value     []byte `json:"Value"`
				Erased    bool   `json:"Erased"`
			} `json:"cells"`
			Complete bool `json:"complete"`
		}
		if err := postJSON(*addr, "/v1/scan/more", moreReq, &moreResp); err != nil {
			fmt.Fprintln(os.Stderr, "scan more:", err)
			os.Exit(1)
		}
		for _, c := range moreResp.Cells {
			if c.Erased {
				fmt.Printf("%s %s@%d ERASED\n", c.Row, c.Column, c.Timestamp)
			} else {
				fmt.Printf("%s %s@%d = %s\n", c.Row, c.Column, c.Timestamp, c.Value)
			}
		}
		if moreResp.Complete {
			break
		}
	}
}
