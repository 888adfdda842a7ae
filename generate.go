// Package sshdesk assembles the session service, event bus, saved-connection
// store and console command handler into one desk.
package sshdesk
