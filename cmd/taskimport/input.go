package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/iota-uz/taskimport/modules/taskimport/domain/entities/candidate"
	"github.com/iota-uz/taskimport/modules/taskimport/domain/mapping"
	"github.com/iota-uz/taskimport/pkg/tabular"
)

type mappingFormat string

const (
	formatJSON mappingFormat = "json"
	formatYAML mappingFormat = "yaml"
	formatTOML mappingFormat = "toml"
)

func parseMappingFormat(s string) (mappingFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return formatJSON, nil
	case "yaml", "yml":
		return formatYAML, nil
	case "toml":
		return formatTOML, nil
	}
	return "", fmt.Errorf("unsupported mapping format %q (json, yaml or toml)", s)
}

func formatFromPath(path string) (mappingFormat, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot infer mapping format of %q", path)
	}
	return parseMappingFormat(ext)
}

func readTable(path string, maxRows int) (*tabular.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, withCode(exitUsage, fmt.Errorf("open input: %w", err))
	}
	defer f.Close()

	table, err := tabular.Parse(f, tabular.Options{MaxRows: maxRows})
	if err != nil {
		return nil, withCode(exitValidation, fmt.Errorf("parse %s: %w", filepath.Base(path), err))
	}
	return table, nil
}

func rawRows(table *tabular.Table) []candidate.RawRow {
	rows := make([]candidate.RawRow, 0, len(table.Rows))
	for _, r := range table.Rows {
		rows = append(rows, candidate.RawRow(r))
	}
	return rows
}

func readMapping(path string) (mapping.Set, error) {
	format, err := formatFromPath(path)
	if err != nil {
		return mapping.Set{}, withCode(exitUsage, err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return mapping.Set{}, withCode(exitUsage, fmt.Errorf("read mapping: %w", err))
	}
	set, err := decodeMapping(raw, format)
	if err != nil {
		return mapping.Set{}, withCode(exitUsage, fmt.Errorf("decode mapping %s: %w", filepath.Base(path), err))
	}
	return set, nil
}

func decodeMapping(raw []byte, format mappingFormat) (mapping.Set, error) {
	var set mapping.Set
	var err error
	switch format {
	case formatYAML:
		err = yaml.Unmarshal(raw, &set)
	case formatTOML:
		_, err = toml.Decode(string(raw), &set)
	default:
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		err = dec.Decode(&set)
	}
	return set, err
}

func encodeMapping(w io.Writer, set mapping.Set, format mappingFormat) error {
	switch format {
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(set); err != nil {
			return err
		}
		return enc.Close()
	case formatTOML:
		return toml.NewEncoder(w).Encode(set)
	default:
		enc := json.NewEncoder(w)
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		return enc.Encode(set)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return withCode(exitDB, fmt.Errorf("json encode: %w", err))
	}
	return nil
}
