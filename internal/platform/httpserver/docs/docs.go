// Package docs registers the OpenAPI document served under /swagger/.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/v1/elections": {
            "get": {
                "tags": ["elections"],
                "summary": "List elections",
                "parameters": [
                    {"type": "string", "name": "status", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ListElectionsResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorEnvelope"}}
                }
            },
            "post": {
                "tags": ["elections"],
                "summary": "Create a draft election",
                "parameters": [
                    {"type": "string", "name": "X-User-Id", "in": "header", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateElectionRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ElectionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorEnvelope"}}
                }
            }
        },
        "/v1/elections/{election_id}/transition": {
            "post": {
                "tags": ["elections"],
                "summary": "Move an election to another lifecycle state",
                "parameters": [
                    {"type": "string", "name": "X-User-Id", "in": "header", "required": true},
                    {"type": "string", "name": "election_id", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TransitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ElectionResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ErrorEnvelope"}}
                }
            }
        },
        "/v1/elections/{election_id}/ballots": {
            "post": {
                "tags": ["ballots"],
                "summary": "Cast one complete ballot",
                "parameters": [
                    {"type": "string", "name": "X-User-Id", "in": "header", "required": true},
                    {"type": "string", "name": "election_id", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitBallotRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/SubmitBallotResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorEnvelope"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ErrorEnvelope"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/ErrorEnvelope"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/ErrorEnvelope"}}
                }
            }
        },
        "/v1/elections/{election_id}/results": {
            "get": {
                "tags": ["results"],
                "summary": "Current or final results",
                "parameters": [
                    {"type": "string", "name": "election_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResultsResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ErrorEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "CreateElectionRequest": {
            "type": "object",
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "starts_at": {"type": "string", "format": "date-time"},
                "ends_at": {"type": "string", "format": "date-time"},
                "total_eligible_voters": {"type": "integer"},
                "rules": {"type": "string"}
            }
        },
        "TransitionRequest": {
            "type": "object",
            "properties": {
                "to_state": {"type": "string"},
                "manual": {"type": "boolean"}
            }
        },
        "SubmitBallotRequest": {
            "type": "object",
            "properties": {
                "selections": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "position_id": {"type": "string"},
                            "candidate_id": {"type": "string"}
                        }
                    }
                }
            }
        },
        "SubmitBallotResponse": {
            "type": "object",
            "properties": {
                "ballot_id": {"type": "string"},
                "election_id": {"type": "string"},
                "submitted_at": {"type": "string", "format": "date-time"}
            }
        },
        "ElectionResponse": {
            "type": "object",
            "properties": {
                "election_id": {"type": "string"},
                "title": {"type": "string"},
                "status": {"type": "string"},
                "starts_at": {"type": "string", "format": "date-time"},
                "ends_at": {"type": "string", "format": "date-time"},
                "total_eligible_voters": {"type": "integer"},
                "ballots_submitted": {"type": "integer"}
            }
        },
        "ListElectionsResponse": {
            "type": "object",
            "properties": {
                "items": {"type": "array", "items": {"$ref": "#/definitions/ElectionResponse"}}
            }
        },
        "ResultsResponse": {
            "type": "object",
            "properties": {
                "election_id": {"type": "string"},
                "provisional": {"type": "boolean"},
                "turnout": {"type": "number"},
                "positions": {"type": "array", "items": {"type": "object"}}
            }
        },
        "ErrorEnvelope": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "timestamp": {"type": "string"},
                "error": {
                    "type": "object",
                    "properties": {
                        "code": {"type": "string"},
                        "message": {"type": "string"},
                        "details": {"type": "object"}
                    }
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Guildhall Election Service API",
	Description:      "Election registry, ballot ledger and tally endpoints.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
