// Interactive terminal client for the discussion server.
//
// Commands once connected:
//
//	/ask <persona> <question>  ask one persona directly
//	/consensus                 request a consensus analysis
//	/summary                   request a summary
//	/agents                    list the available personas
//	/end                       end the discussion
//	anything else              post a message to the room
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/olekukonko/tablewriter"

	"discussion-lab/domain/event"
	"discussion-lab/persona"
)

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
	Ts    int64           `json:"ts"`
}

func main() {
	serverURL := flag.String("url", "ws://localhost:8080/ws/discussions", "server websocket URL")
	sessionID := flag.String("session", "", "session id to join (random if empty)")
	topic := flag.String("topic", "Remote work", "discussion topic")
	userID := flag.String("user", "", "user id (random if empty)")
	agents := flag.String("agents", "", "comma separated persona types")
	background := flag.String("context", "", "background for the discussion")
	flag.Parse()

	if *sessionID == "" {
		*sessionID = uuid.NewString()
	}
	if *userID == "" {
		*userID = fmt.Sprintf("user-%s", uuid.NewString()[:8])
	}

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", *serverURL, err)
	}
	defer conn.Close()

	color.Green.Printf("Connected to %s as %s (session %s)\n", *serverURL, *userID, *sessionID)

	go readLoop(conn)

	var selected []string
	if *agents != "" {
		selected = strings.Split(*agents, ",")
	}
	send(conn, event.NameJoinDiscussion, event.JoinDiscussion{
		Session:        *sessionID,
		Topic:          *topic,
		SelectedAgents: selected,
		Context:        *background,
		UserID:         *userID,
	})

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		handleCommand(conn, *sessionID, *userID, line)
	}
}

func handleCommand(conn *websocket.Conn, sessionID, userID, line string) {
	switch {
	case strings.HasPrefix(line, "/ask "):
		parts := strings.SplitN(strings.TrimPrefix(line, "/ask "), " ", 2)
		if len(parts) != 2 {
			color.Yellow.Println("Usage: /ask <persona> <question>")
			return
		}
		send(conn, event.NameAskAgent, event.AskAgent{Session: sessionID, AgentType: parts[0], Question: parts[1]})
	case line == "/consensus":
		send(conn, event.NameRequestConsensus, event.SessionRequest{Session: sessionID})
	case line == "/summary":
		send(conn, event.NameRequestSummary, event.SessionRequest{Session: sessionID})
	case line == "/agents":
		send(conn, event.NameRequestAgentList, struct{}{})
	case line == "/end":
		send(conn, event.NameEndDiscussion, event.SessionRequest{Session: sessionID})
	default:
		send(conn, event.NameTyping, event.TypingNotice{Session: sessionID, UserID: userID})
		send(conn, event.NameUserMessage, event.UserMessage{Session: sessionID, Message: line})
		send(conn, event.NameStopTyping, event.TypingNotice{Session: sessionID, UserID: userID})
	}
}

func send(conn *websocket.Conn, name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("Failed to marshal %s: %v", name, err)
		return
	}
	if err := conn.WriteJSON(frame{Event: name, Data: data, Ts: time.Now().UnixMilli()}); err != nil {
		log.Fatalf("Connection lost: %v", err)
	}
}

func readLoop(conn *websocket.Conn) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			color.Red.Printf("Disconnected: %v\n", err)
			os.Exit(0)
		}
		render(f)
	}
}

func render(f frame) {
	switch f.Event {
	case event.NameDiscussionInitialized:
		var e event.DiscussionInitialized
		if json.Unmarshal(f.Data, &e) != nil {
			return
		}
		color.Cyan.Printf("== %s ==\n", e.Topic)
		color.Cyan.Printf("Moderator: %s\n", e.OpeningStatement)
		color.Gray.Printf("%d participant(s) in the room\n", len(e.Participants))
	case event.NameUserJoined:
		var e event.UserJoined
		if json.Unmarshal(f.Data, &e) != nil {
			return
		}
		color.Gray.Printf("-> %s joined (%d in the room)\n", e.UserID, e.ParticipantCount)
	case event.NameUserLeft:
		var e event.UserLeft
		if json.Unmarshal(f.Data, &e) != nil {
			return
		}
		color.Gray.Printf("<- someone left (%d in the room)\n", e.ParticipantCount)
	case event.NameNewMessage:
		var e event.NewMessage
		if json.Unmarshal(f.Data, &e) != nil {
			return
		}
		color.White.Printf("[%s] %s\n", e.Agent, e.Message)
	case event.NameAgentResponse:
		var e event.AgentResponse
		if json.Unmarshal(f.Data, &e) != nil {
			return
		}
		color.Green.Printf("%s (%s): %s\n", e.AgentName, e.Role, e.Message)
	case event.NameDiscussionProgress:
		var e event.DiscussionProgress
		if json.Unmarshal(f.Data, &e) != nil {
			return
		}
		color.Gray.Printf("progress: %.0f%%\n", e.Progress*100)
	case event.NameDirectQuestion:
		var e event.DirectQuestion
		if json.Unmarshal(f.Data, &e) != nil {
			return
		}
		color.Yellow.Printf("? to %s: %s\n", e.Agent, e.Question)
	case event.NameDirectAnswer:
		var e event.DirectAnswer
		if json.Unmarshal(f.Data, &e) != nil {
			return
		}
		color.Green.Printf("%s: %s\n", e.AgentName, e.Message)
	case event.NameConsensusAnalysis:
		var e event.ConsensusAnalysis
		if json.Unmarshal(f.Data, &e) != nil {
			return
		}
		color.Magenta.Printf("Consensus: %s\n", e.Analysis)
	case event.NameDiscussionSummary:
		var e event.DiscussionSummary
		if json.Unmarshal(f.Data, &e) != nil {
			return
		}
		color.Magenta.Printf("Summary: %s\n", e.Summary)
		for k, v := range e.Metrics {
			color.Gray.Printf("  %s: %v\n", k, v)
		}
	case event.NameDiscussionEnded:
		var e event.DiscussionEnded
		if json.Unmarshal(f.Data, &e) != nil {
			return
		}
		color.Cyan.Printf("== Discussion ended ==\n%s\n", e.FinalReport)
	case event.NameAgentList:
		var e struct {
			Agents []persona.Descriptor `json:"agents"`
		}
		if json.Unmarshal(f.Data, &e) != nil {
			return
		}
		renderAgents(e.Agents)
	case event.NameUserTyping:
		var e event.UserTyping
		if json.Unmarshal(f.Data, &e) != nil {
			return
		}
		color.Gray.Printf("%s is typing...\n", e.UserID)
	case event.NameUserStoppedTyping:
		// Quiet; the next message makes it obvious.
	case event.NameError:
		var e event.Error
		if json.Unmarshal(f.Data, &e) != nil {
			return
		}
		color.Red.Printf("Error: %s (%s)\n", e.Message, e.Err)
	}
}

func renderAgents(agents []persona.Descriptor) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Type", "Name", "Role", "Expertise", "Style"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	for _, a := range agents {
		table.Append([]string{string(a.Type), a.Name, a.Role, a.Expertise, a.Style})
	}
	table.Render()
}
