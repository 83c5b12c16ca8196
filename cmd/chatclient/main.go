// Command chatclient is the interactive terminal client for a channel
// server: it performs the join handshake, renders incoming chat lines,
// and turns a small set of slash commands into protocol events.
package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/alexmessoussa/Multi-threaded-Chat-Server-Client/internal/protocol"
)

const (
	exitOK           = 0
	exitRejected     = 2
	exitUsage        = 3
	exitConnectError = 7
)

func usageAndExit() {
	fmt.Fprintln(os.Stderr, "Usage: chatclient port_number client_username")
	os.Exit(exitUsage)
}

func main() {
	if len(os.Args) != 3 || strings.Contains(os.Args[2], " ") || os.Args[2] == "" {
		usageAndExit()
	}
	port, err := strconv.Atoi(os.Args[1])
	if err != nil || port < 1024 || port > 65535 {
		fmt.Fprintf(os.Stderr, "Error: Unable to connect to port %s.\n", os.Args[1])
		os.Exit(exitConnectError)
	}

	c := &Client{name: os.Args[2]}
	if err := c.connect(port); err != nil {
		fmt.Fprintf(os.Stderr, "Error: Unable to connect to port %d.\n", port)
		os.Exit(exitConnectError)
	}
	fmt.Printf("Welcome to chatclient, %s.\n", c.name)

	go c.receiveLoop()
	c.interact()
}

// Client owns the connection to whichever channel the user currently
// occupies. A SWITCH reply replaces conn under mu without tearing down
// the receive loop.
type Client struct {
	name string

	mu   sync.Mutex
	conn net.Conn

	done chan struct{}
	once sync.Once
}

func (c *Client) connect(port int) error {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)), 5*time.Second)
	if err != nil {
		return err
	}
	if _, err := conn.Write([]byte(c.name)); err != nil {
		conn.Close()
		return err
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 1024)
	n, err := conn.Read(buf)
	conn.SetReadDeadline(time.Time{})
	if err != nil {
		conn.Close()
		return err
	}
	reply := string(buf[:n])
	if reply != "Y" {
		fmt.Printf("[Server Message] Channel %q already has user %s.\n", reply, c.name)
		os.Exit(exitRejected)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	if c.done == nil {
		c.done = make(chan struct{})
	}
	return nil
}

func (c *Client) currentConn() net.Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *Client) send(e protocol.Event) {
	data, err := protocol.Encode(e)
	if err != nil {
		fmt.Printf("[Server Message] %v\n", err)
		return
	}
	if err := protocol.WriteFrame(c.currentConn(), data); err != nil {
		c.shutdown()
	}
}

func (c *Client) interact() {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		select {
		case <-c.done:
			return
		default:
		}
		line := strings.TrimRight(scanner.Text(), "\n")
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			c.send(protocol.MessageEvent{Name: c.name, Message: line})
			continue
		}
		c.dispatchCommand(line)
	}
	c.send(protocol.QuitEvent{Name: c.name})
	c.shutdown()
}

func (c *Client) dispatchCommand(line string) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/send":
		if len(fields) != 3 {
			fmt.Println("[Server Message] Usage: /send target_client_username file_path")
			return
		}
		if fields[1] == c.name {
			fmt.Println("[Server Message] Cannot send file to yourself.")
			return
		}
		c.send(protocol.SendEvent{Message: fields[2]})
	case "/quit":
		if len(fields) != 1 {
			fmt.Println("[Server Message] Usage: /quit")
			return
		}
		c.send(protocol.QuitEvent{Name: c.name})
	case "/list":
		if len(fields) != 1 {
			fmt.Println("[Server Message] Usage: /list")
			return
		}
		c.send(protocol.ListEvent{Name: c.name})
	case "/whisper":
		parts := strings.SplitN(line, " ", 3)
		if len(parts) < 3 {
			fmt.Println("[Server Message] Usage: /whisper receiver_client_username chat_message")
			return
		}
		c.send(protocol.WhisperEvent{Name: c.name, Target: parts[1], Message: parts[2]})
	case "/switch":
		if len(fields) != 2 {
			fmt.Println("[Server Message] Usage: /switch channel_name")
			return
		}
		c.send(protocol.SwitchEvent{Name: c.name, Channel: fields[1]})
	default:
		c.send(protocol.MessageEvent{Name: c.name, Message: line})
	}
}

func (c *Client) receiveLoop() {
	for {
		conn := c.currentConn()
		payload, err := protocol.ReadFrame(conn)
		if err != nil {
			c.shutdown()
			return
		}
		ev, err := protocol.Decode(payload)
		if err != nil {
			continue
		}
		if c.handle(ev) {
			return
		}
	}
}

// handle applies one received event and reports whether the receive loop
// should stop.
func (c *Client) handle(ev protocol.Event) bool {
	switch e := ev.(type) {
	case protocol.MessageEvent:
		fmt.Printf("[%s] %s\n", e.Name, e.Message)
	case protocol.JoinEvent:
		fmt.Printf("[Server Message] You have joined the channel %q.\n", e.Channel)
	case protocol.QuitEvent:
		c.currentConn().Close()
		c.shutdown()
		return true
	case protocol.KickEvent:
		fmt.Println("[Server Message] You are removed from the channel.")
		c.currentConn().Close()
		c.shutdown()
		return true
	case protocol.ShutdownEvent:
		fmt.Fprintln(os.Stderr, "Error: server connection closed.")
		c.shutdown()
		return true
	case protocol.WhisperEvent:
		fmt.Printf("[%s whispers] %s\n", e.Name, e.Message)
	case protocol.SwitchEvent:
		c.reswitch(e)
	default:
	}
	return false
}

func (c *Client) reswitch(e protocol.SwitchEvent) {
	c.currentConn().Close()
	port, err := strconv.Atoi(e.Channel)
	if err != nil {
		c.shutdown()
		return
	}
	if err := c.connect(port); err != nil {
		c.shutdown()
		return
	}
	fmt.Printf("Welcome to chatclient, %s.\n", c.name)
}

func (c *Client) shutdown() {
	c.once.Do(func() {
		if c.done != nil {
			close(c.done)
		}
		if conn := c.currentConn(); conn != nil {
			conn.Close()
		}
		os.Exit(exitOK)
	})
}
