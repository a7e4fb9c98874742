// Package auth stores the web session the source client authenticates with.
//
// A Manager chains credential stores: the system keyring
// (github.com/zalando/go-keyring), an AES-GCM encrypted file keyed with
// PBKDF2, and the read-only IGMONITOR_SESSION_ID / IGMONITOR_CSRF_TOKEN
// environment variables.
package auth
