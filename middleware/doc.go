// Package middleware adapts the authcore engine to net/http handler
// chains. Guard reads the Authorization header, verifies the access
// token, and injects the account id into the request context; all auth
// decisions stay inside the engine.
package middleware
