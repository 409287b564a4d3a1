package docs

import "github.com/swaggo/swag"

const docTemplate = `{
  "swagger": "2.0",
  "info": {
    "title": "Alloy Dispatcher API",
    "description": "Dispatches booked cleaning jobs to contractors over SMS and records the first acceptance",
    "version": "1.0"
  },
  "basePath": "/",
  "paths": {
    "/health": {"get": {"tags": ["health"], "summary": "Liveness probe", "produces": ["application/json"], "responses": {"200": {"description": "OK"}, "503": {"description": "Job store unavailable"}}}},
    "/contractors": {"get": {"tags": ["contractors"], "summary": "List eligible contractors", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
    "/debug/jobs": {"get": {"tags": ["debug"], "summary": "Dump the job store", "produces": ["application/json"], "parameters": [{"name": "X-Admin-Key", "in": "header", "type": "string", "required": false}], "responses": {"200": {"description": "OK"}, "401": {"description": "Invalid admin key"}}}},
    "/dispatch": {"post": {"tags": ["webhooks"], "summary": "Dispatch a booked job", "consumes": ["application/json"], "produces": ["application/json"], "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"type": "object"}}], "responses": {"200": {"description": "Dispatch result"}, "400": {"description": "Invalid payload"}}}},
    "/contractor-reply": {"post": {"tags": ["webhooks"], "summary": "Contractor SMS reply", "consumes": ["application/json"], "produces": ["application/json"], "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"type": "object"}}], "responses": {"200": {"description": "Assignment result or rejection"}}}},
    "/leads/cleaning": {"post": {"tags": ["leads"], "summary": "Submit a cleaning lead", "consumes": ["application/json"], "produces": ["application/json"], "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"type": "object"}}], "responses": {"200": {"description": "OK"}, "400": {"description": "Validation failed"}, "500": {"description": "CRM error"}}}},
    "/leads/pros": {"post": {"tags": ["leads"], "summary": "Submit a contractor application", "consumes": ["application/json"], "produces": ["application/json"], "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"type": "object"}}], "responses": {"200": {"description": "OK"}, "400": {"description": "Validation failed"}, "500": {"description": "CRM error"}}}}
  }
}`

func init() {
	swag.Register(swag.Name, &s{})
}

type s struct{}

func (s *s) ReadDoc() string {
	return docTemplate
}
