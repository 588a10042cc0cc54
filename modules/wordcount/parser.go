package wordcount

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const regionNameSeparator = " :: "

// maxCountFloat is 2^64, the first float that no longer fits a uint64.
const maxCountFloat = float64(1 << 64)

// RegionStat is one parsed regional aggregate.
type RegionStat struct {
	Key       string
	Name      string
	Writers   uint64
	Average   float64
	WordCount uint64
	Donations decimal.Decimal
}

// UserStat is one parsed writer record.
type UserStat struct {
	Name      string
	WordCount uint64
	// Today is set only when HasToday reports a history entry for the day.
	Today    uint64
	HasToday bool
}

// field is one optional scalar read from a payload.
type field struct {
	value   string
	present bool
}

type regionFields struct {
	failure   field
	name      field
	wordCount field
	average   field
	writers   field
	donations field
}

type userFields struct {
	failure   field
	name      field
	wordCount field
	history   []field
}

type xmlText struct {
	Value string `xml:",chardata"`
}

type regionXML struct {
	Error     *xmlText `xml:"error"`
	Name      *xmlText `xml:"rname"`
	WordCount *xmlText `xml:"region_wordcount"`
	Average   *xmlText `xml:"average"`
	Writers   *xmlText `xml:"count"`
	Donations *xmlText `xml:"donations"`
}

type userXML struct {
	Error      *xmlText `xml:"error"`
	Name       *xmlText `xml:"uname"`
	WordCount  *xmlText `xml:"user_wordcount"`
	WordCounts struct {
		Entries []struct {
			WordCount *xmlText `xml:"wc"`
		} `xml:"wcentry"`
	} `xml:"wordcounts"`
}

// ParseRegion decodes one regional aggregate record.
func ParseRegion(payload RawPayload) (RegionStat, error) {
	fields, err := decodeRegionFields(payload)
	if err != nil {
		return RegionStat{}, err
	}
	if fields.failure.present {
		return RegionStat{}, &FieldMissingError{Kind: payload.Kind, Key: payload.Key, Field: "rname"}
	}

	name, err := requireText(payload, fields.name, "rname")
	if err != nil {
		return RegionStat{}, err
	}
	wordCount, err := requireCount(payload, fields.wordCount, "region_wordcount")
	if err != nil {
		return RegionStat{}, err
	}
	writers, err := optionalCount(payload, fields.writers, "count")
	if err != nil {
		return RegionStat{}, err
	}
	average, err := optionalFloat(payload, fields.average, "average")
	if err != nil {
		return RegionStat{}, err
	}
	donations, err := optionalDecimal(payload, fields.donations, "donations")
	if err != nil {
		return RegionStat{}, err
	}

	return RegionStat{
		Key:       payload.Key,
		Name:      regionDisplayName(name),
		Writers:   writers,
		Average:   average,
		WordCount: wordCount,
		Donations: donations,
	}, nil
}

// ParseUser decodes one writer record. day is the 1-based day of month used
// to pick today's entry from the history; values below 1 skip it.
func ParseUser(payload RawPayload, day int) (UserStat, error) {
	fields, err := decodeUserFields(payload)
	if err != nil {
		return UserStat{}, err
	}
	if fields.failure.present {
		return UserStat{}, &FieldMissingError{Kind: payload.Kind, Key: payload.Key, Field: "uname"}
	}

	name, err := requireText(payload, fields.name, "uname")
	if err != nil {
		return UserStat{}, err
	}
	wordCount, err := requireCount(payload, fields.wordCount, "user_wordcount")
	if err != nil {
		return UserStat{}, err
	}

	stat := UserStat{Name: name, WordCount: wordCount}
	if day >= 1 && day <= len(fields.history) && fields.history[day-1].present {
		today, err := optionalCount(payload, fields.history[day-1], "wcentry.wc")
		if err != nil {
			return UserStat{}, err
		}
		stat.Today = today
		stat.HasToday = true
	}

	return stat, nil
}

func decodeRegionFields(payload RawPayload) (regionFields, error) {
	switch payloadFormat(payload) {
	case FormatJSON:
		root, err := jsonRoot(payload)
		if err != nil {
			return regionFields{}, err
		}
		return regionFields{
			failure:   jsonField(root, "error"),
			name:      jsonField(root, "rname"),
			wordCount: jsonField(root, "region_wordcount"),
			average:   jsonField(root, "average"),
			writers:   jsonField(root, "count"),
			donations: jsonField(root, "donations"),
		}, nil
	default:
		var decoded regionXML
		if err := xml.Unmarshal(payload.Body, &decoded); err != nil {
			return regionFields{}, &MalformedResponseError{Kind: payload.Kind, Key: payload.Key, Cause: err}
		}
		return regionFields{
			failure:   xmlField(decoded.Error),
			name:      xmlField(decoded.Name),
			wordCount: xmlField(decoded.WordCount),
			average:   xmlField(decoded.Average),
			writers:   xmlField(decoded.Writers),
			donations: xmlField(decoded.Donations),
		}, nil
	}
}

func decodeUserFields(payload RawPayload) (userFields, error) {
	switch payloadFormat(payload) {
	case FormatJSON:
		root, err := jsonRoot(payload)
		if err != nil {
			return userFields{}, err
		}
		entries := root.Get("wordcounts.wcentry")
		if entries.IsObject() {
			entries = gjson.Parse("[" + entries.Raw + "]")
		}
		history := make([]field, 0, len(entries.Array()))
		for _, entry := range entries.Array() {
			history = append(history, jsonField(entry, "wc"))
		}
		return userFields{
			failure:   jsonField(root, "error"),
			name:      jsonField(root, "uname"),
			wordCount: jsonField(root, "user_wordcount"),
			history:   history,
		}, nil
	default:
		var decoded userXML
		if err := xml.Unmarshal(payload.Body, &decoded); err != nil {
			return userFields{}, &MalformedResponseError{Kind: payload.Kind, Key: payload.Key, Cause: err}
		}
		history := make([]field, 0, len(decoded.WordCounts.Entries))
		for _, entry := range decoded.WordCounts.Entries {
			history = append(history, xmlField(entry.WordCount))
		}
		return userFields{
			failure:   xmlField(decoded.Error),
			name:      xmlField(decoded.Name),
			wordCount: xmlField(decoded.WordCount),
			history:   history,
		}, nil
	}
}

func payloadFormat(payload RawPayload) PayloadFormat {
	if payload.Format != FormatAuto {
		return payload.Format
	}
	trimmed := bytes.TrimSpace(payload.Body)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}

	return FormatXML
}

func jsonRoot(payload RawPayload) (gjson.Result, error) {
	if !gjson.ValidBytes(payload.Body) {
		return gjson.Result{}, &MalformedResponseError{
			Kind:  payload.Kind,
			Key:   payload.Key,
			Cause: fmt.Errorf("invalid json"),
		}
	}
	root := gjson.ParseBytes(payload.Body)
	if !root.IsObject() {
		return gjson.Result{}, &MalformedResponseError{
			Kind:  payload.Kind,
			Key:   payload.Key,
			Cause: fmt.Errorf("json root is %s, want object", root.Type),
		}
	}

	return root, nil
}

func jsonField(root gjson.Result, path string) field {
	value := root.Get(path)
	if !value.Exists() || value.Type == gjson.Null {
		return field{}
	}

	return field{value: strings.TrimSpace(value.String()), present: true}
}

func xmlField(node *xmlText) field {
	if node == nil {
		return field{}
	}

	return field{value: strings.TrimSpace(node.Value), present: true}
}

func requireText(payload RawPayload, value field, name string) (string, error) {
	if !value.present || value.value == "" {
		return "", &FieldMissingError{Kind: payload.Kind, Key: payload.Key, Field: name}
	}

	return value.value, nil
}

func requireCount(payload RawPayload, value field, name string) (uint64, error) {
	if !value.present || value.value == "" {
		return 0, &FieldMissingError{Kind: payload.Kind, Key: payload.Key, Field: name}
	}

	return optionalCount(payload, value, name)
}

func optionalCount(payload RawPayload, value field, name string) (uint64, error) {
	raw := strings.ReplaceAll(value.value, ",", "")
	if !value.present || raw == "" {
		return 0, nil
	}
	count, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		// Some endpoints serialize counts as floats.
		asFloat, floatErr := strconv.ParseFloat(raw, 64)
		if floatErr != nil {
			return 0, malformedField(payload, name, err)
		}
		if !(asFloat >= 0 && asFloat < maxCountFloat) {
			return 0, malformedField(payload, name, fmt.Errorf("count %s out of range", raw))
		}
		count = uint64(asFloat)
	}

	return count, nil
}

func optionalFloat(payload RawPayload, value field, name string) (float64, error) {
	raw := strings.ReplaceAll(value.value, ",", "")
	if !value.present || raw == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, malformedField(payload, name, err)
	}

	return parsed, nil
}

func optionalDecimal(payload RawPayload, value field, name string) (decimal.Decimal, error) {
	raw := strings.TrimPrefix(strings.ReplaceAll(value.value, ",", ""), "$")
	if !value.present || raw == "" {
		return decimal.Zero, nil
	}
	parsed, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, malformedField(payload, name, err)
	}

	return parsed, nil
}

func malformedField(payload RawPayload, name string, err error) error {
	return &MalformedResponseError{
		Kind:  payload.Kind,
		Key:   payload.Key,
		Cause: fmt.Errorf("field %s: %w", name, err),
	}
}

// regionDisplayName keeps only the last segment of a qualified region name.
func regionDisplayName(name string) string {
	if index := strings.LastIndex(name, regionNameSeparator); index >= 0 {
		name = name[index+len(regionNameSeparator):]
	}

	return strings.TrimSpace(name)
}
