package fetcher

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// miniFTPServer supports just enough of the FTP protocol for RETR.
type miniFTPServer struct {
	listener net.Listener
	fileData map[string]string
	wg       sync.WaitGroup
}

func newMiniFTPServer(t *testing.T, files map[string]string) *miniFTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := &miniFTPServer{listener: ln, fileData: files}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.close)
	return s
}

func (s *miniFTPServer) addr() string {
	return s.listener.Addr().String()
}

func (s *miniFTPServer) close() {
	s.listener.Close() //nolint:errcheck
	s.wg.Wait()
}

func (s *miniFTPServer) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

func (s *miniFTPServer) handleConn(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close() //nolint:errcheck

	conn.SetDeadline(time.Now().Add(10 * time.Second)) //nolint:errcheck

	writer := bufio.NewWriter(conn)
	reader := bufio.NewReader(conn)
	reply := func(format string, args ...any) {
		fmt.Fprintf(writer, format+"\r\n", args...) //nolint:errcheck
		writer.Flush()                              //nolint:errcheck
	}

	reply("220 Mini FTP Server ready")

	var dataListener net.Listener
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		parts := strings.SplitN(strings.TrimSpace(line), " ", 2)
		cmd := strings.ToUpper(parts[0])
		arg := ""
		if len(parts) > 1 {
			arg = parts[1]
		}

		switch cmd {
		case "USER", "PASS":
			reply("230 User logged in")
		case "FEAT":
			fmt.Fprintf(writer, "211-Features:\r\n UTF8\r\n") //nolint:errcheck
			reply("211 End")
		case "TYPE":
			reply("200 Type set to %s", arg)
		case "OPTS":
			reply("200 OK")
		case "EPSV":
			dataListener, err = net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				reply("425 Can't open data connection")
				continue
			}
			reply("229 Entering Extended Passive Mode (|||%d|)", dataListener.Addr().(*net.TCPAddr).Port)
		case "PASV":
			dataListener, err = net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				reply("425 Can't open data connection")
				continue
			}
			port := dataListener.Addr().(*net.TCPAddr).Port
			reply("227 Entering Passive Mode (127,0,0,1,%d,%d)", port/256, port%256)
		case "RETR":
			if dataListener == nil {
				reply("425 Use PASV first")
				continue
			}
			content, ok := s.fileData[arg]
			if !ok {
				reply("550 File not found")
				dataListener.Close() //nolint:errcheck
				dataListener = nil
				continue
			}
			reply("150 Opening data connection")
			dataConn, err := dataListener.Accept()
			if err != nil {
				reply("425 Can't open data connection")
				continue
			}
			io.WriteString(dataConn, content) //nolint:errcheck
			dataConn.Close()                  //nolint:errcheck
			dataListener.Close()              //nolint:errcheck
			dataListener = nil
			reply("226 Transfer complete")
		case "QUIT":
			reply("221 Goodbye")
			return
		default:
			reply("502 Command not implemented")
		}
	}
}
