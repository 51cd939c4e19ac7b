// Copyright © 2018 One Concern

/*
Package space defines the storage protocol shared by every space.

A space is a witness over storage: callers build an Arg carrying a command
("get", "put" or "delete") and optional modifiers ("can", "addrs",
"latest"), hand it to Witness, and receive a Result. Payload nodes and
binary data travel beside the request and response nodes, never inside
their hashed data.

Concrete storage is provided by a Backend. New wraps a Backend with request
validation, routing, the catch-all error policy and the optional self-log
hook, so every backend exposes exactly the same command and response shape.
*/
package space
