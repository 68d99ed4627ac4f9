package main

import (
	"fmt"

	"github.com/teamech/go-teamech/client"
)

// helloWorld answers "Hello world!" in kind. Deployments replace it with
// whatever their endpoint should respond to.
func helloWorld(m client.Message, _ *client.Session) []byte {
	switch m.Text {
	case "Hello world!":
		return []byte("Hello world!")
	}
	return nil
}

// reply wraps a reply hook so that what it sends is also shown locally.
func reply(f client.ReplyFunc) client.ReplyFunc {
	return func(m client.Message, s *client.Session) []byte {
		r := f(m, s)
		if len(r) > 0 {
			fmt.Printf("\r%s\n", formatLine("LOC", string(r), r))
		}
		return r
	}
}
