package refreshprovidertoken

import "exbuddy/internal/common/validation"

var inputSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["userId"],
	"properties": {
		"userId":   {"type": "string", "minLength": 1, "maxLength": 255},
		"provider": {"type": "string", "maxLength": 64}
	}
}`)
