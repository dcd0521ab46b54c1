package export

// JSONLSchema is the JSON Schema every exported puzzle object conforms to.
// Consumers of the JSONL output can validate against it; our own tests do.
const JSONLSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "tactician puzzle",
  "type": "object",
  "required": ["id", "fen", "solver", "objective", "phase", "main_line", "termination", "source"],
  "properties": {
    "id": {"type": "string", "minLength": 36, "maxLength": 36},
    "fen": {"type": "string", "minLength": 10},
    "solver": {"type": "string", "enum": ["White", "Black"]},
    "objective": {"type": "string", "enum": ["Mate", "MaterialGain", "Reversal", "Consolidation"]},
    "phase": {"type": "string", "enum": ["Opening", "Middlegame", "Endgame"]},
    "main_line": {
      "type": "array",
      "minItems": 1,
      "items": {"type": "string", "pattern": "^[a-h][1-8][a-h][1-8][qrbn]?$"}
    },
    "termination": {"type": "string", "enum": ["mate", "stabilized-advantage", "stalemate", "length-limit"]},
    "alternates": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["moves", "termination", "branch_ply"],
        "properties": {
          "moves": {"type": "array", "items": {"type": "string"}},
          "termination": {"type": "string"},
          "branch_ply": {"type": "integer", "minimum": 0}
        }
      }
    },
    "source": {
      "type": "object",
      "required": ["game_index", "ply"],
      "properties": {
        "game_index": {"type": "integer", "minimum": 1},
        "ply": {"type": "integer", "minimum": 0},
        "white": {"type": "string"},
        "black": {"type": "string"},
        "date": {"type": "string"},
        "event": {"type": "string"}
      }
    }
  }
}`
