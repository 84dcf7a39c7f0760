package fixtures

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/itchyny/gojq"
)

// Query evaluates a jq expression against a JSON file and returns all of its outputs.
//
//	d.Query("package.json", ".dependencies | keys")
func (d *Dir) Query(rel, expression string) ([]interface{}, error) {
	data, err := os.ReadFile(d.Join(rel))
	if err != nil {
		return nil, err
	}
	var input interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, fmt.Errorf("%s is not valid JSON: %w", rel, err)
	}
	return QueryValue(input, expression)
}

// QueryValue evaluates a jq expression against a value decoded with encoding/json.
func QueryValue(input interface{}, expression string) ([]interface{}, error) {
	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("parse error in %q: %w", expression, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("compile error in %q: %w", expression, err)
	}
	var results []interface{}
	iter := code.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return nil, err
		}
		results = append(results, v)
	}
	return results, nil
}

// QueryString is Query for an expression that must produce exactly one string.
func (d *Dir) QueryString(rel, expression string) (string, error) {
	results, err := d.Query(rel, expression)
	if err != nil {
		return "", err
	}
	if len(results) != 1 {
		return "", fmt.Errorf("%q produced %d results, expected 1", expression, len(results))
	}
	s, ok := results[0].(string)
	if !ok {
		return "", fmt.Errorf("%q produced %v, expected a string", expression, results[0])
	}
	return s, nil
}
