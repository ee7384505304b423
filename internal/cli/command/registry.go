package command

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Registry returns all CLI commands keyed by "service action".
func Registry() map[string]Command {
	commands := []Command{
		{
			Service:      "review",
			Action:       "run",
			Method:       "POST",
			PathTemplate: "/api/v1/reviews",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "submission_id", Aliases: []string{"id"}, Prompt: "submission_id", Type: FieldInt64, Required: true},
				{Name: "force", Prompt: "force (yes/no)", Type: FieldBool, Required: false},
			},
		},
		{
			Service:      "review",
			Action:       "status",
			Method:       "GET",
			PathTemplate: "/api/v1/reviews/:id",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "id", Aliases: []string{"submission_id"}, Prompt: "submission_id", Type: FieldInt64, Required: true},
			},
		},
		{
			Service:      "review",
			Action:       "import",
			Method:       "POST",
			PathTemplate: "/api/v1/reviews/import",
			RequiresAuth: true,
		},
		{
			Service:      "roster",
			Action:       "import",
			Method:       "POST",
			PathTemplate: "/api/v1/roster/import",
			RequiresAuth: true,
			Fields: []Field{
				{Name: "file", Aliases: []string{"csv"}, Prompt: "roster csv file", Type: FieldFile, Required: true},
			},
		},
		{
			Service:      "service",
			Action:       "health",
			Method:       "GET",
			PathTemplate: "/healthz",
			RequiresAuth: false,
		},
	}

	result := make(map[string]Command, len(commands))
	for _, cmd := range commands {
		result[cmd.Key()] = cmd
	}
	return result
}

// BuildRequest creates HTTP request spec based on command.
func BuildRequest(cmd Command, params Params) (RequestSpec, error) {
	params.Canonicalize(cmd.Fields)
	if err := validate(cmd, params); err != nil {
		return RequestSpec{}, err
	}
	path, err := buildPath(cmd.PathTemplate, params)
	if err != nil {
		return RequestSpec{}, err
	}

	headers := map[string]string{}
	var body []byte
	switch cmd.Key() {
	case "roster import":
		body, err = ReadFile(params.Get("file"))
		if err != nil {
			return RequestSpec{}, err
		}
		headers["Content-Type"] = "text/csv"
	default:
		if cmd.Method != "GET" && cmd.Method != "DELETE" {
			payload, err := buildPayload(cmd, params)
			if err != nil {
				return RequestSpec{}, err
			}
			if payload != nil {
				body, err = json.Marshal(payload)
				if err != nil {
					return RequestSpec{}, fmt.Errorf("marshal request body failed: %w", err)
				}
			}
		}
	}

	return RequestSpec{
		Method:  cmd.Method,
		Path:    path,
		Headers: headers,
		Body:    body,
	}, nil
}

func validate(cmd Command, params Params) error {
	for _, field := range cmd.Fields {
		value := params.Get(field.Name)
		if value == "" {
			if field.Required {
				return fmt.Errorf("%s is required", field.Name)
			}
			continue
		}
		switch field.Type {
		case FieldInt64:
			if _, err := ParseInt64(value); err != nil {
				return fmt.Errorf("invalid %s: %w", field.Name, err)
			}
		case FieldBool:
			if _, err := ParseBool(value); err != nil {
				return fmt.Errorf("invalid %s: %w", field.Name, err)
			}
		}
	}
	return nil
}

func buildPath(template string, params Params) (string, error) {
	path := template
	for _, key := range []string{"id"} {
		placeholder := ":" + key
		if strings.Contains(path, placeholder) {
			value := params.Get(key)
			if value == "" {
				return "", fmt.Errorf("missing path parameter: %s", key)
			}
			path = strings.ReplaceAll(path, placeholder, value)
		}
	}
	return path, nil
}

func buildPayload(cmd Command, params Params) (interface{}, error) {
	switch cmd.Key() {
	case "review run":
		id, err := ParseInt64(params.Get("submission_id"))
		if err != nil {
			return nil, fmt.Errorf("invalid submission_id: %w", err)
		}
		force, err := ParseBool(params.Get("force"))
		if err != nil {
			return nil, fmt.Errorf("invalid force: %w", err)
		}
		return map[string]interface{}{
			"submission_id": id,
			"force":         force,
		}, nil
	}
	return nil, nil
}
