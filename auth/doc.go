// Package auth guards the administrative endpoints of the cache server.
//
// Requests are authenticated by a Chain of Authenticators, a JWT bearer
// token validator and a static API key table, and then authorized by role
// in Middleware. Pipeline requests are never authenticated here.
package auth
