// Package docs registers the OpenAPI description served at /swagger.
// Regenerate with: swag init -g internal/http/router.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/assessment/send": {
            "post": {
                "tags": ["Assessments"],
                "summary": "Store an assessment",
                "operationId": "createAssessment",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Caller id set by the gateway", "name": "X-User-ID", "in": "header", "required": true},
                    {"description": "Assessment payload", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.AssessmentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/assessment.Assessment"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Missing identity", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/assessment/list": {
            "get": {
                "tags": ["Assessments"],
                "summary": "List the caller's assessments",
                "operationId": "listAssessments",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "X-User-ID", "in": "header", "required": true},
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/assessment.Assessment"}}, "headers": {"ETag": {"type": "string"}}},
                    "304": {"description": "Not Modified"},
                    "404": {"description": "No assessments", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/assessment/{id}": {
            "get": {
                "tags": ["Assessments"],
                "summary": "Read one assessment",
                "operationId": "getAssessment",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "X-User-ID", "in": "header", "required": true},
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/assessment.Assessment"}},
                    "404": {"description": "Not found or not owned", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "put": {
                "tags": ["Assessments"],
                "summary": "Update an assessment",
                "operationId": "updateAssessment",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "X-User-ID", "in": "header", "required": true},
                    {"type": "string", "name": "id", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.AssessmentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/assessment.Assessment"}},
                    "400": {"description": "Validation failed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Owned by another user", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["Assessments"],
                "summary": "Delete an assessment",
                "operationId": "deleteAssessment",
                "parameters": [
                    {"type": "string", "name": "X-User-ID", "in": "header", "required": true},
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not found or not owned", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/chat/send": {
            "post": {
                "tags": ["Chat"],
                "summary": "Send a chat message",
                "operationId": "sendChatMessage",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "X-User-ID", "in": "header", "required": true},
                    {"type": "string", "description": "Replays the stored result for a repeated key", "name": "Idempotency-Key", "in": "header"},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.SendMessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.SendMessageResponse"}, "headers": {"Idempotency-Replayed": {"type": "string"}}},
                    "400": {"description": "Empty or oversized message", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Conversation or assessment not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Rate limited", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Conversation busy", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/chat/history": {
            "get": {
                "tags": ["Chat"],
                "summary": "List conversations",
                "operationId": "chatHistory",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "X-User-ID", "in": "header", "required": true},
                    {"type": "string", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HistoryResponse"}},
                    "304": {"description": "Not Modified"}
                }
            }
        },
        "/api/chat/{conversationId}": {
            "get": {
                "tags": ["Chat"],
                "summary": "Read a conversation",
                "operationId": "getConversation",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "X-User-ID", "in": "header", "required": true},
                    {"type": "string", "name": "conversationId", "in": "path", "required": true},
                    {"type": "integer", "description": "Most recent messages only", "name": "limit", "in": "query", "minimum": 1, "maximum": 500}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ConversationResponse"}},
                    "304": {"description": "Not Modified"},
                    "404": {"description": "Not found or not owned", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["Chat"],
                "summary": "Delete a conversation",
                "operationId": "deleteConversation",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "X-User-ID", "in": "header", "required": true},
                    {"type": "string", "name": "conversationId", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.MessageResponse"}},
                    "404": {"description": "Not found or not owned", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Conversation busy", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/chat/{conversationId}/assessment": {
            "put": {
                "tags": ["Chat"],
                "summary": "Change a conversation's assessment",
                "operationId": "relinkConversation",
                "consumes": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "X-User-ID", "in": "header", "required": true},
                    {"type": "string", "name": "conversationId", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.RelinkRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Conversation or assessment not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/chat/{conversationId}/messages/{messageId}": {
            "put": {
                "tags": ["Chat"],
                "summary": "Edit a message and regenerate replies",
                "operationId": "editMessage",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "name": "X-User-ID", "in": "header", "required": true},
                    {"type": "string", "name": "conversationId", "in": "path", "required": true},
                    {"type": "string", "name": "messageId", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.EditMessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.EditMessageResponse"}},
                    "400": {"description": "Empty or oversized message", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "404": {"description": "Conversation or message not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "assessment.Recommendation": {
            "type": "object",
            "properties": {"title": {"type": "string"}, "description": {"type": "string"}}
        },
        "assessment.Assessment": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_id": {"type": "string"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"},
                "age": {"type": "string"},
                "pattern": {"type": "string", "enum": ["regular", "irregular", "heavy", "pain", "developing"]},
                "cycle_length": {"type": "string"},
                "period_duration": {"type": "string"},
                "flow_heaviness": {"type": "string"},
                "pain_level": {"type": "string"},
                "physical_symptoms": {"type": "array", "items": {"type": "string"}},
                "emotional_symptoms": {"type": "array", "items": {"type": "string"}},
                "other_symptoms": {"type": "array", "items": {"type": "string"}},
                "recommendations": {"type": "array", "items": {"$ref": "#/definitions/assessment.Recommendation"}}
            }
        },
        "assessment.FieldError": {
            "type": "object",
            "properties": {"field": {"type": "string"}, "message": {"type": "string"}}
        },
        "domain.Message": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "conversation_id": {"type": "string"},
                "role": {"type": "string", "enum": ["user", "assistant"]},
                "content": {"type": "string"},
                "user_id": {"type": "string"},
                "parent_message_id": {"type": "string"},
                "created_at": {"type": "string"},
                "edited_at": {"type": "string"}
            }
        },
        "handlers.AssessmentRequest": {
            "type": "object",
            "properties": {"assessmentData": {"type": "object"}}
        },
        "handlers.SendMessageRequest": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "conversationId": {"type": "string"},
                "assessmentId": {"type": "string"}
            }
        },
        "handlers.SendMessageResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "conversationId": {"type": "string"},
                "userMessage": {"$ref": "#/definitions/domain.Message"},
                "assistantMessage": {"$ref": "#/definitions/domain.Message"},
                "fallback": {"type": "boolean"}
            }
        },
        "services.ConversationSummary": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "assessment_id": {"type": "string"},
                "assessment_pattern": {"type": "string"},
                "preview": {"type": "string"},
                "message_count": {"type": "integer"},
                "created_at": {"type": "string"},
                "updated_at": {"type": "string"}
            }
        },
        "handlers.HistoryResponse": {
            "type": "object",
            "properties": {"conversations": {"type": "array", "items": {"$ref": "#/definitions/services.ConversationSummary"}}}
        },
        "handlers.ConversationResponse": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "assessment_id": {"type": "string"},
                "assessment_pattern": {"type": "string"},
                "messages": {"type": "array", "items": {"$ref": "#/definitions/domain.Message"}}
            }
        },
        "handlers.RelinkRequest": {
            "type": "object",
            "properties": {"assessmentId": {"type": "string"}, "pattern": {"type": "string"}}
        },
        "handlers.EditMessageRequest": {
            "type": "object",
            "properties": {"content": {"type": "string"}}
        },
        "handlers.EditMessageResponse": {
            "type": "object",
            "properties": {
                "message": {"$ref": "#/definitions/domain.Message"},
                "regenerated": {"type": "array", "items": {"$ref": "#/definitions/domain.Message"}}
            }
        },
        "handlers.MessageResponse": {
            "type": "object",
            "properties": {"message": {"type": "string"}}
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string"},
                "message": {"type": "string"},
                "errors": {"type": "array", "items": {"$ref": "#/definitions/assessment.FieldError"}}
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
	Title:            "Cycle Assessment API",
	Description:      "Menstrual cycle assessments and assessment-anchored chat.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
