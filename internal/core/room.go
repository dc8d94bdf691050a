package core

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog/log"
)

// ProducerKey identifies the producer of one kind owned by a session.
type ProducerKey struct {
	SessionID domain.SessionID
	Kind      domain.MediaKind
}

// ConsumerKey identifies the consumer a session holds for one producer.
type ConsumerKey struct {
	SessionID  domain.SessionID
	ProducerID domain.ProducerID
}

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []*Session
}

// JoinResult is what a successful join hands back to the caller.
type JoinResult struct {
	Participant       domain.Participant
	IsReconnection    bool
	// AlreadyJoined is set when the session was in the room before this call.
	AlreadyJoined     bool
	PreviousSessionID domain.SessionID
	// Replaced holds the stale session's resources when the same user rejoined.
	Replaced          *Detached
	Participants      []domain.Participant
	ExistingProducers []domain.Producer
	Messages          []domain.Message
}

// Resources counts the handles attributed to one session.
type Resources struct {
	Transports int
	Producers  int
	Consumers  int
}

// DepartedParticipant is a user that dropped without leaving and may still reconnect.
type DepartedParticipant struct {
	UserID     domain.UserID
	Name       string
	JoinedAt   time.Time
	IsHost     bool
	DepartedAt time.Time
}

type member struct {
	participant domain.Participant
	session     *Session
}

type transportSlot struct {
	id        domain.TransportID
	connected bool
	pending   uint64
}

// Room is the per-room state. Every exported method is atomic with respect to the room.
// No method calls into the media gateway; callers close what the room hands back.
type Room struct {
	info domain.RoomInfo

	mu                 sync.RWMutex
	order              []domain.SessionID
	participants       map[domain.SessionID]*member
	byUser             map[domain.UserID]domain.SessionID
	departed           map[domain.UserID]DepartedParticipant
	producers          map[ProducerKey]*domain.Producer
	consumers          map[ConsumerKey]*domain.Consumer
	producerTransports map[domain.SessionID]*transportSlot
	consumerTransports map[domain.SessionID]*transportSlot
	messages           []domain.Message
	tokens             uint64
	closed             bool
}

func NewRoom(info domain.RoomInfo) *Room {
	return &Room{
		info:               info,
		participants:       make(map[domain.SessionID]*member),
		byUser:             make(map[domain.UserID]domain.SessionID),
		departed:           make(map[domain.UserID]DepartedParticipant),
		producers:          make(map[ProducerKey]*domain.Producer),
		consumers:          make(map[ConsumerKey]*domain.Consumer),
		producerTransports: make(map[domain.SessionID]*transportSlot),
		consumerTransports: make(map[domain.SessionID]*transportSlot),
	}
}

func (r *Room) Info() domain.RoomInfo { return r.info }
func (r *Room) ID() domain.RoomID     { return r.info.ID }

// Join adds s as userID. A live entry of the same user under another session is
// replaced and its isHost/joinedAt are carried over; so is a departed entry younger than grace.
func (r *Room) Join(s *Session, userID domain.UserID, name string, now time.Time, grace time.Duration) (*JoinResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("%w: room %s", ErrNotFound, r.info.ID)
	}
	r.pruneDepartedLocked(now, grace)

	sid := s.ID()
	if m, ok := r.participants[sid]; ok {
		if m.participant.UserID != userID {
			return nil, fmt.Errorf("%w: session already joined as another user", ErrState)
		}
		m.participant.Name = name
		res := r.joinResultLocked(m.participant)
		res.AlreadyJoined = true
		return res, nil
	}

	res := &JoinResult{}
	joinedAt := now
	isHost := false
	if oldSID, ok := r.byUser[userID]; ok {
		old := r.participants[oldSID].participant
		res.Replaced = r.detachSessionLocked(oldSID)
		res.IsReconnection = true
		res.PreviousSessionID = oldSID
		joinedAt = old.JoinedAt
		isHost = old.IsHost
	} else if dep, ok := r.departed[userID]; ok {
		res.IsReconnection = true
		joinedAt = dep.JoinedAt
		isHost = dep.IsHost && !r.hasHostLocked()
	}
	delete(r.departed, userID)
	isHost = isHost || len(r.participants) == 0

	p := domain.Participant{
		SessionID: sid,
		UserID:    userID,
		Name:      name,
		JoinedAt:  joinedAt,
		IsHost:    isHost,
	}
	r.participants[sid] = &member{participant: p, session: s}
	r.byUser[userID] = sid
	r.order = append(r.order, sid)

	jr := r.joinResultLocked(p)
	jr.IsReconnection = res.IsReconnection
	jr.PreviousSessionID = res.PreviousSessionID
	jr.Replaced = res.Replaced
	log.Info().Str("module", "core.room").Str("room", string(r.info.ID)).Str("sid", string(sid)).
		Str("user", string(userID)).Bool("host", isHost).Bool("reconnect", res.IsReconnection).Msg("participant joined")
	return jr, nil
}

func (r *Room) joinResultLocked(p domain.Participant) *JoinResult {
	return &JoinResult{
		Participant:       p,
		Participants:      r.participantsLocked(),
		ExistingProducers: r.producersLocked(p.UserID),
		Messages:          r.recentMessagesLocked(domain.MessageHistoryLimit),
	}
}

// RemoveSession detaches sid with everything it owns. A non-zero departedAt keeps a
// reconnect record for the user. Returns nil when sid is not in the room.
func (r *Room) RemoveSession(sid domain.SessionID, departedAt time.Time) *Detached {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.participants[sid]
	if !ok {
		return nil
	}
	p := m.participant
	d := r.detachSessionLocked(sid)
	if !departedAt.IsZero() {
		r.departed[p.UserID] = DepartedParticipant{
			UserID:     p.UserID,
			Name:       p.Name,
			JoinedAt:   p.JoinedAt,
			IsHost:     p.IsHost,
			DepartedAt: departedAt,
		}
	}
	log.Info().Str("module", "core.room").Str("room", string(r.info.ID)).Str("sid", string(sid)).Msg("participant removed")
	return d
}

// Close marks the room closed and detaches every participant.
func (r *Room) Close() []*Detached {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	out := make([]*Detached, 0, len(r.order))
	for _, sid := range slices.Clone(r.order) {
		if d := r.detachSessionLocked(sid); d != nil {
			out = append(out, d)
		}
	}
	clear(r.departed)
	return out
}

// CloseIfEmpty closes the room only when it has no participants.
func (r *Room) CloseIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || len(r.participants) > 0 {
		return false
	}
	r.closed = true
	clear(r.departed)
	return true
}

func (r *Room) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func (r *Room) detachSessionLocked(sid domain.SessionID) *Detached {
	m, ok := r.participants[sid]
	if !ok {
		return nil
	}
	p := m.participant
	d := &Detached{Participant: &p, Session: m.session}
	for key, prod := range r.producers {
		if key.SessionID == sid {
			d.merge(r.detachProducerLocked(key, prod))
		}
	}
	for key, c := range r.consumers {
		if key.SessionID == sid {
			d.Consumers = append(d.Consumers, *c)
			delete(r.consumers, key)
		}
	}
	for _, dir := range []domain.Direction{domain.DirectionSend, domain.DirectionRecv} {
		slots := r.slots(dir)
		if slot, ok := slots[sid]; ok {
			if slot.id != "" {
				d.Transports = append(d.Transports, domain.Transport{ID: slot.id, SessionID: sid, Direction: dir, Connected: slot.connected})
			}
			delete(slots, sid)
		}
	}
	delete(r.participants, sid)
	if r.byUser[p.UserID] == sid {
		delete(r.byUser, p.UserID)
	}
	r.order = slices.DeleteFunc(r.order, func(s domain.SessionID) bool { return s == sid })
	return d
}

func (r *Room) detachProducerLocked(key ProducerKey, prod *domain.Producer) *Detached {
	d := &Detached{Producers: []domain.Producer{*prod}}
	delete(r.producers, key)
	for ck, c := range r.consumers {
		if c.ProducerID == prod.ID {
			delete(r.consumers, ck)
			if ck.SessionID == prod.SessionID {
				d.Consumers = append(d.Consumers, *c)
			} else {
				d.PeerConsumers = append(d.PeerConsumers, *c)
			}
		}
	}
	return d
}

func (r *Room) detachTransportLocked(sid domain.SessionID, dir domain.Direction, id domain.TransportID, connected bool) *Detached {
	d := &Detached{Transports: []domain.Transport{{ID: id, SessionID: sid, Direction: dir, Connected: connected}}}
	for key, prod := range r.producers {
		if prod.TransportID == id {
			d.merge(r.detachProducerLocked(key, prod))
		}
	}
	for key, c := range r.consumers {
		if c.TransportID == id {
			d.Consumers = append(d.Consumers, *c)
			delete(r.consumers, key)
		}
	}
	return d
}

func (r *Room) slots(dir domain.Direction) map[domain.SessionID]*transportSlot {
	if dir == domain.DirectionSend {
		return r.producerTransports
	}
	return r.consumerTransports
}

func (r *Room) requireMemberLocked(sid domain.SessionID) (*member, error) {
	if r.closed {
		return nil, fmt.Errorf("%w: room %s", ErrNotFound, r.info.ID)
	}
	m, ok := r.participants[sid]
	if !ok {
		return nil, fmt.Errorf("%w: session is not a participant of room %s", ErrState, r.info.ID)
	}
	return m, nil
}

// ReserveTransport records an in-flight creation for sid in direction dir.
// The token must be handed to CommitTransport or AbortTransport.
func (r *Room) ReserveTransport(sid domain.SessionID, dir domain.Direction) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.requireMemberLocked(sid); err != nil {
		return 0, err
	}
	slots := r.slots(dir)
	slot, ok := slots[sid]
	if ok && slot.pending != 0 {
		return 0, fmt.Errorf("%w: %s transport creation already in progress", ErrState, dir)
	}
	if !ok {
		slot = &transportSlot{}
		slots[sid] = slot
	}
	r.tokens++
	slot.pending = r.tokens
	return slot.pending, nil
}

// CommitTransport stores id for a reservation. A transport it replaces is returned detached.
// ErrNotFound means the session or reservation is gone and id must be closed by the caller.
func (r *Room) CommitTransport(sid domain.SessionID, dir domain.Direction, token uint64, id domain.TransportID) (*Detached, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, fmt.Errorf("%w: room %s", ErrNotFound, r.info.ID)
	}
	slot, ok := r.slots(dir)[sid]
	if !ok || slot.pending != token || r.participants[sid] == nil {
		return nil, fmt.Errorf("%w: %s transport reservation for session %s", ErrNotFound, dir, sid)
	}
	var replaced *Detached
	if slot.id != "" {
		replaced = r.detachTransportLocked(sid, dir, slot.id, slot.connected)
	}
	slot.id = id
	slot.connected = false
	slot.pending = 0
	return replaced, nil
}

func (r *Room) AbortTransport(sid domain.SessionID, dir domain.Direction, token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slots := r.slots(dir)
	slot, ok := slots[sid]
	if !ok || slot.pending != token {
		return
	}
	slot.pending = 0
	if slot.id == "" {
		delete(slots, sid)
	}
}

// Transport returns the ready transport of sid in direction dir.
func (r *Room) Transport(sid domain.SessionID, dir domain.Direction) (domain.Transport, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, err := r.requireMemberLocked(sid); err != nil {
		return domain.Transport{}, err
	}
	slot, ok := r.slots(dir)[sid]
	if !ok || slot.id == "" {
		return domain.Transport{}, fmt.Errorf("%w: %s transport not created", ErrState, dir)
	}
	return domain.Transport{ID: slot.id, SessionID: sid, Direction: dir, Connected: slot.connected}, nil
}

// MarkTransportConnected flags the transport as connected if it is still the current one.
func (r *Room) MarkTransportConnected(sid domain.SessionID, dir domain.Direction, id domain.TransportID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.requireMemberLocked(sid); err != nil {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	slot, ok := r.slots(dir)[sid]
	if !ok || slot.id != id {
		return fmt.Errorf("%w: %s transport %s", ErrNotFound, dir, id)
	}
	slot.connected = true
	return nil
}

// PrepareProduce checks the producer transport and detaches any producer of the same kind.
func (r *Room) PrepareProduce(sid domain.SessionID, kind domain.MediaKind) (domain.TransportID, *Detached, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.requireMemberLocked(sid); err != nil {
		return "", nil, err
	}
	slot, ok := r.producerTransports[sid]
	if !ok || slot.id == "" {
		return "", nil, fmt.Errorf("%w: producer transport not created", ErrState)
	}
	key := ProducerKey{SessionID: sid, Kind: kind}
	var replaced *Detached
	if prod, ok := r.producers[key]; ok {
		replaced = r.detachProducerLocked(key, prod)
	}
	return slot.id, replaced, nil
}

// CommitProducer stores prod. ErrNotFound means the session or its transport went away
// while the engine call was in flight.
func (r *Room) CommitProducer(prod domain.Producer) (domain.Producer, *Detached, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.requireMemberLocked(prod.SessionID)
	if err != nil {
		return prod, nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	slot, ok := r.producerTransports[prod.SessionID]
	if !ok || slot.id != prod.TransportID {
		return prod, nil, fmt.Errorf("%w: producer transport %s", ErrNotFound, prod.TransportID)
	}
	prod.UserID = m.participant.UserID
	prod.UserName = m.participant.Name
	key := ProducerKey{SessionID: prod.SessionID, Kind: prod.Kind}
	var replaced *Detached
	if old, ok := r.producers[key]; ok {
		replaced = r.detachProducerLocked(key, old)
	}
	stored := prod
	r.producers[key] = &stored
	return prod, replaced, nil
}

// PrepareConsume resolves the consumer transport of sid and the target producer.
func (r *Room) PrepareConsume(sid domain.SessionID, producerID domain.ProducerID) (domain.TransportID, domain.Producer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, err := r.requireMemberLocked(sid); err != nil {
		return "", domain.Producer{}, err
	}
	slot, ok := r.consumerTransports[sid]
	if !ok || slot.id == "" {
		return "", domain.Producer{}, fmt.Errorf("%w: consumer transport not created", ErrState)
	}
	_, prod := r.findProducerLocked(producerID)
	if prod == nil {
		return "", domain.Producer{}, fmt.Errorf("%w: producer %s", ErrNotFound, producerID)
	}
	return slot.id, *prod, nil
}

// CommitConsumer stores c. An older consumer of the same producer held by the session is returned detached.
func (r *Room) CommitConsumer(c domain.Consumer) (*Detached, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.requireMemberLocked(c.SessionID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	slot, ok := r.consumerTransports[c.SessionID]
	if !ok || slot.id != c.TransportID {
		return nil, fmt.Errorf("%w: consumer transport %s", ErrNotFound, c.TransportID)
	}
	if _, prod := r.findProducerLocked(c.ProducerID); prod == nil {
		return nil, fmt.Errorf("%w: producer %s", ErrNotFound, c.ProducerID)
	}
	key := ConsumerKey{SessionID: c.SessionID, ProducerID: c.ProducerID}
	var replaced *Detached
	if old, ok := r.consumers[key]; ok {
		replaced = &Detached{Consumers: []domain.Consumer{*old}}
	}
	stored := c
	r.consumers[key] = &stored
	return replaced, nil
}

// Consumer returns the consumer id owned by sid.
func (r *Room) Consumer(sid domain.SessionID, id domain.ConsumerID) (domain.Consumer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, err := r.requireMemberLocked(sid); err != nil {
		return domain.Consumer{}, err
	}
	for key, c := range r.consumers {
		if key.SessionID == sid && c.ID == id {
			return *c, nil
		}
	}
	return domain.Consumer{}, fmt.Errorf("%w: consumer %s", ErrNotFound, id)
}

func (r *Room) SetConsumerPaused(sid domain.SessionID, id domain.ConsumerID, paused bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, c := range r.consumers {
		if key.SessionID == sid && c.ID == id {
			c.Paused = paused
			return nil
		}
	}
	return fmt.Errorf("%w: consumer %s", ErrNotFound, id)
}

// RemoveProducer detaches producer id. A non-empty owner must match the producing session.
func (r *Room) RemoveProducer(id domain.ProducerID, owner domain.SessionID) (*Detached, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key, prod := r.findProducerLocked(id)
	if prod == nil {
		return nil, fmt.Errorf("%w: producer %s", ErrNotFound, id)
	}
	if owner != "" && key.SessionID != owner {
		return nil, fmt.Errorf("%w: producer %s is owned by another session", ErrForbidden, id)
	}
	return r.detachProducerLocked(key, prod), nil
}

// RemoveConsumer detaches consumer id wherever it is held.
func (r *Room) RemoveConsumer(id domain.ConsumerID) *Detached {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, c := range r.consumers {
		if c.ID == id {
			delete(r.consumers, key)
			return &Detached{Consumers: []domain.Consumer{*c}}
		}
	}
	return nil
}

// RemoveTransport detaches transport id and every producer/consumer carried on it.
func (r *Room) RemoveTransport(id domain.TransportID) *Detached {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dir := range []domain.Direction{domain.DirectionSend, domain.DirectionRecv} {
		slots := r.slots(dir)
		for sid, slot := range slots {
			if slot.id != id {
				continue
			}
			d := r.detachTransportLocked(sid, dir, id, slot.connected)
			if slot.pending == 0 {
				delete(slots, sid)
			} else {
				slot.id = ""
				slot.connected = false
			}
			return d
		}
	}
	return nil
}

func (r *Room) findProducerLocked(id domain.ProducerID) (ProducerKey, *domain.Producer) {
	for key, prod := range r.producers {
		if prod.ID == id {
			return key, prod
		}
	}
	return ProducerKey{}, nil
}

// AppendMessage adds a chat message sent by sid.
func (r *Room) AppendMessage(sid domain.SessionID, text string, maxLen int) (domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, err := r.requireMemberLocked(sid)
	if err != nil {
		return domain.Message{}, err
	}
	msg, err := domain.NewMessage(r.info.ID, m.participant, text, maxLen)
	if err != nil {
		return domain.Message{}, err
	}
	r.messages = append(r.messages, msg)
	return msg, nil
}

func (r *Room) recentMessagesLocked(n int) []domain.Message {
	start := max(len(r.messages)-n, 0)
	return slices.Clone(r.messages[start:])
}

func (r *Room) Messages(n int) []domain.Message {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.recentMessagesLocked(n)
}

func (r *Room) MessageCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.messages)
}

func (r *Room) ParticipantCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// Participants returns the current participants in join order.
func (r *Room) Participants() []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.participantsLocked()
}

func (r *Room) participantsLocked() []domain.Participant {
	out := make([]domain.Participant, 0, len(r.order))
	for _, sid := range r.order {
		out = append(out, r.participants[sid].participant)
	}
	return out
}

func (r *Room) Participant(sid domain.SessionID) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.participants[sid]
	if !ok {
		return domain.Participant{}, false
	}
	return m.participant, true
}

func (r *Room) HasUser(userID domain.UserID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byUser[userID]
	return ok
}

func (r *Room) hasHostLocked() bool {
	for _, m := range r.participants {
		if m.participant.IsHost {
			return true
		}
	}
	return false
}

// Departed lists users that dropped less than grace ago and have not rejoined.
func (r *Room) Departed(now time.Time, grace time.Duration) []DepartedParticipant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]DepartedParticipant, 0, len(r.departed))
	for _, d := range r.departed {
		if now.Sub(d.DepartedAt) <= grace {
			out = append(out, d)
		}
	}
	slices.SortFunc(out, func(a, b DepartedParticipant) int { return a.JoinedAt.Compare(b.JoinedAt) })
	return out
}

func (r *Room) pruneDepartedLocked(now time.Time, grace time.Duration) {
	for uid, d := range r.departed {
		if now.Sub(d.DepartedAt) > grace {
			delete(r.departed, uid)
		}
	}
}

// Producers lists producers in join order, skipping those of excludeUser.
func (r *Room) Producers(excludeUser domain.UserID) []domain.Producer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.producersLocked(excludeUser)
}

func (r *Room) producersLocked(excludeUser domain.UserID) []domain.Producer {
	out := make([]domain.Producer, 0, len(r.producers))
	for _, sid := range r.order {
		if r.participants[sid].participant.UserID == excludeUser && excludeUser != "" {
			continue
		}
		for _, kind := range []domain.MediaKind{domain.KindAudio, domain.KindVideo} {
			if prod, ok := r.producers[ProducerKey{SessionID: sid, Kind: kind}]; ok {
				out = append(out, *prod)
			}
		}
	}
	return out
}

// Resources counts what the room attributes to sid.
func (r *Room) Resources(sid domain.SessionID) Resources {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var res Resources
	for _, slots := range []map[domain.SessionID]*transportSlot{r.producerTransports, r.consumerTransports} {
		if slot, ok := slots[sid]; ok && slot.id != "" {
			res.Transports++
		}
	}
	for key := range r.producers {
		if key.SessionID == sid {
			res.Producers++
		}
	}
	for key := range r.consumers {
		if key.SessionID == sid {
			res.Consumers++
		}
	}
	return res
}

// SessionState derives the signaling state of sid from the resources it owns.
func (r *Room) SessionState(sid domain.SessionID) domain.SessionState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.participants[sid]
	if !ok {
		return domain.StateConnected
	}
	st := domain.StateIdentified
	if m.session.CapabilitiesKnown() {
		st = domain.StateCapabilitiesKnown
	}
	if slot, ok := r.producerTransports[sid]; ok && slot.id != "" {
		st = domain.StateProducerTransportReady
	}
	if slot, ok := r.consumerTransports[sid]; ok && slot.id != "" {
		st = domain.StateConsumerTransportReady
	}
	for key := range r.producers {
		if key.SessionID == sid {
			return domain.StateActive
		}
	}
	for key := range r.consumers {
		if key.SessionID == sid {
			return domain.StateActive
		}
	}
	return st
}

func (r *Room) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.order))
	for _, sid := range r.order {
		out = append(out, r.participants[sid].session)
	}
	return out
}

// Broadcast sends data to every participant except from.
func (r *Room) Broadcast(from domain.SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for _, sid := range r.order {
		if sid == from {
			continue
		}
		m := r.participants[sid]
		if err := m.session.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m.session)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.info.ID)).Str("from", string(from)).
		Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// SendTo delivers data to the listed participants only.
func (r *Room) SendTo(sids []domain.SessionID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for _, sid := range sids {
		m, ok := r.participants[sid]
		if !ok {
			continue
		}
		if err := m.session.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m.session)
			continue
		}
		res.SendTo++
	}
	return res
}
