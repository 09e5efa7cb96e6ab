package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Rastion Datasets API",
        "description": "Dataset ingestion, access ledger and compatibility scoring for Rastion problem repositories",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Datasets", "description": "Upload, browse and download datasets"},
        {"name": "Compatibility", "description": "Dataset to problem repository scoring"}
    ],
    "paths": {
        "/health": {
            "get": {
                "summary": "Health check",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/ready": {
            "get": {
                "summary": "Readiness check",
                "responses": {
                    "200": {"description": "Ready"},
                    "503": {"description": "A dependency is unreachable"}
                }
            }
        },
        "/datasets": {
            "get": {
                "tags": ["Datasets"],
                "summary": "List datasets",
                "parameters": [
                    {"name": "format_type", "in": "query", "type": "string"},
                    {"name": "mine", "in": "query", "type": "boolean"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Datasets"],
                "summary": "Upload dataset",
                "security": [{"BearerAuth": []}],
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file", "in": "formData", "type": "file", "required": true},
                    {"name": "name", "in": "formData", "type": "string"},
                    {"name": "description", "in": "formData", "type": "string"},
                    {"name": "format_type", "in": "formData", "type": "string", "default": "auto", "enum": ["auto", "tsplib", "vrp", "json", "csv", "txt", "xml", "xlsx"]},
                    {"name": "problem_type", "in": "formData", "type": "string", "default": "auto"},
                    {"name": "is_public", "in": "formData", "type": "boolean"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "File too large", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "415": {"description": "Unsupported format", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/datasets/{id}": {
            "get": {
                "tags": ["Datasets"],
                "summary": "Get dataset metadata",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "patch": {
                "tags": ["Datasets"],
                "summary": "Update dataset description or visibility",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/UpdateDatasetRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Datasets"],
                "summary": "Delete dataset",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/datasets/{id}/download": {
            "get": {
                "tags": ["Datasets"],
                "summary": "Download dataset content",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "File content", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/datasets/{id}/access": {
            "get": {
                "tags": ["Datasets"],
                "summary": "Dataset access counts",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/datasets/{id}/compatibility": {
            "get": {
                "tags": ["Compatibility"],
                "summary": "List compatibility scores, best first",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/datasets/{id}/compatibility/recompute": {
            "post": {
                "tags": ["Compatibility"],
                "summary": "Recompute compatibility scores",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Catalog unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "Dataset": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "user_id": {"type": "string"},
                "name": {"type": "string"},
                "description": {"type": "string"},
                "file_size": {"type": "integer"},
                "mime_type": {"type": "string"},
                "format_type": {"type": "string"},
                "problem_hint": {"type": "string"},
                "metadata": {"type": "object"},
                "is_public": {"type": "boolean"},
                "original_filename": {"type": "string"},
                "checksum": {"type": "string"},
                "download_url": {"type": "string"},
                "created_at": {"type": "string", "format": "date-time"},
                "updated_at": {"type": "string", "format": "date-time"}
            }
        },
        "UpdateDatasetRequest": {
            "type": "object",
            "properties": {
                "description": {"type": "string"},
                "is_public": {"type": "boolean"}
            }
        },
        "DatasetCompatibility": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "dataset_id": {"type": "string"},
                "problem_type": {"type": "string"},
                "repository_owner": {"type": "string"},
                "repository_name": {"type": "string"},
                "compatibility_score": {"type": "number"},
                "compatibility_details": {"type": "object"},
                "computed_at": {"type": "string", "format": "date-time"}
            }
        },
        "AccessSummary": {
            "type": "object",
            "properties": {
                "dataset_id": {"type": "string"},
                "total": {"type": "integer"},
                "by_type": {"type": "object"},
                "recent": {"type": "array", "items": {"type": "object"}}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
