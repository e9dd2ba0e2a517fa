// Package script runs logfire's atomic operations as Redis Lua scripts.
//
// Every operation (create, query, flush, clean) is the shared helper
// library lua/mixins.lua followed by the operation's own body. Redis runs a
// script without interleaving any other command, which is what makes event
// creation, querying and expiry atomic: a reader never observes a hash
// without its set membership and index entries, or the reverse.
//
// Arguments cross the script boundary as one canonical JSON document in
// ARGV[1]; every script returns a JSON encoded result.
package script
