package auth

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

const apiReferenceHTML = `<!doctype html>
<html>
  <head>
    <title>inspirer-auth API Reference</title>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
  </head>
  <body>
    <script id="api-reference" type="application/json">
    %s
    </script>
    <script src="https://cdn.jsdelivr.net/npm/@scalar/api-reference"></script>
  </body>
</html>`

// newAPIDoc describes the login API.
func newAPIDoc() *openapi3.T {
	schemas := openapi3.Schemas{}

	credential := openapi3.NewObjectSchema().
		WithProperty("type", openapi3.NewStringSchema().WithEnum("username", "email")).
		WithProperty("payload", openapi3.NewObjectSchema().
			WithProperty("username", openapi3.NewStringSchema()).
			WithProperty("email", openapi3.NewStringSchema()).
			WithProperty("password", openapi3.NewStringSchema()))
	credential.Required = []string{"type", "payload"}
	schemas["Credential"] = openapi3.NewSchemaRef("", credential)

	ref := func(name string) *openapi3.SchemaRef {
		return openapi3.NewSchemaRef("#/components/schemas/"+name, schemas[name].Value)
	}

	loginRequest := openapi3.NewObjectSchema().WithPropertyRef("credential", ref("Credential"))
	loginRequest.Required = []string{"credential"}
	schemas["LoginRequest"] = openapi3.NewSchemaRef("", loginRequest)

	loginResponse := openapi3.NewObjectSchema().
		WithProperty("token_type", openapi3.NewStringSchema().WithEnum("Bearer")).
		WithProperty("access_token", openapi3.NewStringSchema()).
		WithProperty("id_token", openapi3.NewStringSchema()).
		WithProperty("expires_in", openapi3.NewIntegerSchema()).
		WithProperty("redirect_to", openapi3.NewStringSchema())
	loginResponse.Required = []string{"token_type", "access_token"}
	schemas["LoginResponse"] = openapi3.NewSchemaRef("", loginResponse)

	errorDetail := openapi3.NewObjectSchema().
		WithProperty("error", openapi3.NewStringSchema()).
		WithProperty("description", openapi3.NewStringSchema())
	errorDetail.Required = []string{"error"}
	schemas["ErrorDetail"] = openapi3.NewSchemaRef("", errorDetail)

	envelope := func(data string, desc string) *openapi3.ResponseRef {
		body := openapi3.NewObjectSchema().
			WithProperty("success", openapi3.NewBoolSchema()).
			WithPropertyRef("data", ref(data))
		return &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription(desc).WithJSONSchema(body)}
	}
	body := &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().WithRequired(true).WithJSONSchemaRef(ref("LoginRequest")),
	}

	appID := openapi3.NewHeaderParameter(AppIDHeader)
	appID.Description = "UUID of the application to log in to"
	appID.Required = true
	appID.Schema = openapi3.NewSchemaRef("", openapi3.NewStringSchema())

	paths := openapi3.NewPaths()
	paths.Set("/login", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "login",
			Summary:     "Log in to the application bound to the session",
			Description: "The session is bound to an application by GET /login?app_id=. " +
				"If an authorization request is pending, redirect_to returns the user to the client.",
			Tags:        []string{"login"},
			RequestBody: body,
			Responses: openapi3.NewResponses(
				openapi3.WithStatus(http.StatusOK, envelope("LoginResponse", "Logged in")),
				openapi3.WithStatus(http.StatusBadRequest, envelope("ErrorDetail", "Malformed request, or no application bound to the session")),
				openapi3.WithStatus(http.StatusUnauthorized, envelope("ErrorDetail", "Wrong password")),
				openapi3.WithStatus(http.StatusNotFound, envelope("ErrorDetail", "Unknown application or user")),
			),
		},
	})
	paths.Set("/api/login", &openapi3.PathItem{
		Post: &openapi3.Operation{
			OperationID: "apiLogin",
			Summary:     "Log in without a browser session",
			Description: "Issues an access token with scope " + apiLoginScope + ".",
			Tags:        []string{"login"},
			Parameters:  openapi3.Parameters{{Value: appID}},
			RequestBody: body,
			Responses: openapi3.NewResponses(
				openapi3.WithStatus(http.StatusOK, envelope("LoginResponse", "Logged in")),
				openapi3.WithStatus(http.StatusBadRequest, envelope("ErrorDetail", "Malformed request or "+AppIDHeader+" header")),
				openapi3.WithStatus(http.StatusUnauthorized, envelope("ErrorDetail", "Wrong password")),
				openapi3.WithStatus(http.StatusNotFound, envelope("ErrorDetail", "Unknown application or user")),
			),
		},
	})

	return &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       Name + " API",
			Description: "User login for " + Name + " applications.",
			Version:     "1.0.0",
		},
		Paths:      paths,
		Components: &openapi3.Components{Schemas: schemas},
		Tags: openapi3.Tags{
			{Name: "login", Description: "User authentication"},
		},
	}
}

// apiDocsHandlers returns the handlers serving the OpenAPI document and its
// reference page.
func apiDocsHandlers() (openAPI, reference http.HandlerFunc, err error) {
	doc, err := json.Marshal(newAPIDoc())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal OpenAPI document: %w", err)
	}
	page := fmt.Sprintf(apiReferenceHTML, doc)

	openAPI = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	}
	reference = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}
	return openAPI, reference, nil
}
