// Package auth authenticates API callers.
//
// Callers present an HS256 JWT as a bearer token:
//
//	Authorization: Bearer <token>
//
// The token's "sub" claim becomes the caller Identity, an opaque string used
// only as the owner key for conversations and assessments. Tokens are minted
// with JWTVerifier.Generate (see the "token" subcommand).
//
// HTTPAuthMiddleware rejects missing, malformed, expired or badly signed
// tokens with 401 before any handler runs. Handlers read the caller with
// FromContext.
package auth
