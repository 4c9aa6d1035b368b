package compose

import "encoding/json"

// outlineSchema is sent to the model as the response schema and used again to
// validate what comes back.
var outlineSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "metadata": {
      "type": "object",
      "properties": {
        "title":    {"type": "string", "minLength": 1},
        "author":   {"type": "string"},
        "summary":  {"type": "string"},
        "genre":    {"type": "string"},
        "language": {"type": "string", "description": "ISO 639-1 code of the manuscript language"}
      },
      "required": ["title", "author", "summary", "language"]
    },
    "chapters": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "properties": {
          "id":          {"type": "string", "minLength": 1},
          "title":       {"type": "string", "minLength": 1},
          "description": {"type": "string", "minLength": 1}
        },
        "required": ["id", "title", "description"]
      }
    }
  },
  "required": ["metadata", "chapters"]
}`)
