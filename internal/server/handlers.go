// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the room chat page.
package server

import (
	"fmt"
	"net/http"
)

// WebSocketHandler upgrades GET requests to WebSocket and hands the new
// client to the hub, which registers it and starts its pumps.
func (s *Server) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	client := NewClient(conn, s.hub, r.RemoteAddr, s.cfg)
	if !s.hub.Register(client) {
		_ = conn.Close()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Room chat server is running!")
}

// PageHandler serves the browser client: pick a name and a room, chat, and
// attach files through the upload endpoint.
func (s *Server) PageHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := fmt.Fprint(w, chatPage); err != nil {
		s.log.Warn("error writing HTML response", "err", err)
	}
}

const chatPage = `<!DOCTYPE html>
<html>
<head>
    <title>Room Chat</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 320px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 220px; padding: 5px; margin-right: 10px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:disabled { background-color: #9bbfd3; cursor: default; }
        .status { color: gray; font-style: italic; }
        .mine { color: blue; }
        .theirs { color: green; }
    </style>
</head>
<body>
    <h1>Room Chat</h1>

    <div>
        <input type="text" id="username" placeholder="Your name">
        <input type="text" id="room" placeholder="Room">
        <button id="joinButton" onclick="joinRoom()">Join</button>
    </div>

    <div id="messages"></div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendText()" disabled>Send</button>
        <input type="file" id="fileInput" disabled>
        <button id="fileButton" onclick="sendFile()" disabled>Send file</button>
    </div>

    <script>
        const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
        const ws = new WebSocket(scheme + location.host + '/ws');
        const messagesDiv = document.getElementById('messages');
        let me = null;

        function addLine(text, cls) {
            const el = document.createElement('div');
            el.className = cls;
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
            return el;
        }

        function emit(event, data) {
            ws.send(JSON.stringify({event: event, data: data}));
        }

        function setEnabled(on) {
            for (const id of ['messageInput', 'sendButton', 'fileInput', 'fileButton']) {
                document.getElementById(id).disabled = !on;
            }
        }

        ws.onopen = function() { addLine('Connected', 'status'); };
        ws.onclose = function() { addLine('Connection closed', 'status'); setEnabled(false); };

        ws.onmessage = function(event) {
            for (const line of event.data.split('\n')) {
                const env = JSON.parse(line);
                if (env.event === 'status') {
                    addLine(env.data.msg, 'status');
                } else if (env.event === 'receive_message') {
                    const m = env.data;
                    const cls = me && m.sender === me.username ? 'mine' : 'theirs';
                    if (m.type === 'file') {
                        const el = addLine(m.sender + ': ', cls);
                        const a = document.createElement('a');
                        a.href = m.url;
                        a.textContent = m.name + ' (' + m.size + ' bytes)';
                        a.target = '_blank';
                        el.appendChild(a);
                    } else {
                        addLine(m.sender + ': ' + m.text, cls);
                    }
                }
            }
        };

        function joinRoom() {
            const username = document.getElementById('username').value.trim();
            const room = document.getElementById('room').value.trim();
            if (!username || !room) {
                return;
            }
            me = {username: username, room: room};
            emit('join', me);
            setEnabled(true);
        }

        function sendText() {
            const input = document.getElementById('messageInput');
            const text = input.value.trim();
            if (text && me) {
                emit('send_message', {room: me.room, sender: me.username, type: 'text', text: text});
                input.value = '';
            }
        }

        async function sendFile() {
            const input = document.getElementById('fileInput');
            if (!input.files.length || !me) {
                return;
            }
            const form = new FormData();
            form.append('file', input.files[0]);
            const resp = await fetch('/upload', {method: 'POST', body: form});
            const body = await resp.json();
            if (!resp.ok) {
                addLine('Upload failed: ' + body.error, 'status');
                return;
            }
            emit('send_message', {room: me.room, sender: me.username, type: 'file',
                name: body.name, url: body.url, size: body.size});
            input.value = '';
        }

        document.getElementById('messageInput').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendText();
            }
        });
    </script>
</body>
</html>`
