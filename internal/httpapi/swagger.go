//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

// SwaggerInfo holds the exported Swagger metadata. Regenerate the template
// with swag init after changing handler annotations.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{"http"},
	Title:            "forged API",
	Description:      "Model lifecycle, inference and accelerator telemetry.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}

// MountSwagger serves the Swagger UI under /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

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
        "/models": {
            "get": {
                "tags": [
                    "models"
                ],
                "summary": "List loaded models",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            },
            "post": {
                "tags": [
                    "models"
                ],
                "summary": "Load a model onto the device",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "consumes": [
                    "application/json"
                ]
            }
        },
        "/models/{id}": {
            "get": {
                "tags": [
                    "models"
                ],
                "summary": "Describe a loaded model",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ]
            },
            "delete": {
                "tags": [
                    "models"
                ],
                "summary": "Unload a model and free its memory",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/models/{id}/optimize": {
            "post": {
                "tags": [
                    "models"
                ],
                "summary": "Compile a model for a precision",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ],
                "consumes": [
                    "application/json"
                ]
            }
        },
        "/infer": {
            "post": {
                "tags": [
                    "inference"
                ],
                "summary": "Run one inference synchronously",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "consumes": [
                    "application/json"
                ]
            }
        },
        "/infer/async": {
            "post": {
                "tags": [
                    "inference"
                ],
                "summary": "Submit an inference task",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "consumes": [
                    "application/json"
                ]
            }
        },
        "/tasks/{id}": {
            "get": {
                "tags": [
                    "inference"
                ],
                "summary": "Poll an inference task",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ]
            },
            "delete": {
                "tags": [
                    "inference"
                ],
                "summary": "Cancel an inference task",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "parameters": [
                    {
                        "type": "string",
                        "description": "id",
                        "name": "id",
                        "in": "path",
                        "required": true
                    }
                ]
            }
        },
        "/generate": {
            "post": {
                "tags": [
                    "images"
                ],
                "summary": "Generate an image from a prompt",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "consumes": [
                    "application/json"
                ]
            }
        },
        "/upscale": {
            "post": {
                "tags": [
                    "images"
                ],
                "summary": "Upscale an RGB image",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                },
                "consumes": [
                    "application/json"
                ]
            }
        },
        "/status": {
            "get": {
                "tags": [
                    "status"
                ],
                "summary": "Engine and monitor status",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/telemetry": {
            "get": {
                "tags": [
                    "telemetry"
                ],
                "summary": "Collect a fresh telemetry snapshot",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/telemetry/history": {
            "get": {
                "tags": [
                    "telemetry"
                ],
                "summary": "Recorded telemetry snapshots, oldest first",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        },
        "/catalog": {
            "get": {
                "tags": [
                    "models"
                ],
                "summary": "Model files available in the models directory",
                "produces": [
                    "application/json"
                ],
                "responses": {
                    "200": {
                        "description": "OK"
                    }
                }
            }
        }
    }
}`
