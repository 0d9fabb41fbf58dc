package store

import "github.com/alexjbarnes/cloudsync/internal/models"

// subscription is one live folder-content stream.
type subscription struct {
	owner      string
	spaceID    string
	folderPath string
	ch         chan []models.FileRecord
}

// WatchFolder returns a channel that emits the folder's current content
// whenever any record in the (owner, space) scope changes. The current
// content is emitted immediately on subscription. Slow consumers only
// miss intermediate snapshots: the channel is conflated to the latest
// state, never blocked.
//
// The returned cancel function unsubscribes and closes the channel.
func (s *Store) WatchFolder(owner, spaceID, folderPath string) (<-chan []models.FileRecord, func()) {
	sub := &subscription{
		owner:      owner,
		spaceID:    spaceID,
		folderPath: folderPath,
		ch:         make(chan []models.FileRecord, 1),
	}

	s.subMu.Lock()
	s.subs = append(s.subs, sub)
	s.subMu.Unlock()

	s.emit(sub)

	cancel := func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()

		for i, candidate := range s.subs {
			if candidate == sub {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				close(sub.ch)

				return
			}
		}
	}

	return sub.ch, cancel
}

// notifyScope re-evaluates every subscription in the given scope. Folder
// content queries are cheap prefix scans, so re-running them per
// mutation keeps the stream logic simple and always consistent.
func (s *Store) notifyScope(owner, spaceID string) {
	s.subMu.Lock()
	subs := make([]*subscription, 0, len(s.subs))

	for _, sub := range s.subs {
		if sub.owner == owner && sub.spaceID == spaceID {
			subs = append(subs, sub)
		}
	}
	s.subMu.Unlock()

	for _, sub := range subs {
		s.emit(sub)
	}
}

// emit re-queries a subscription's folder and delivers the snapshot,
// replacing a pending undelivered one. Delivery happens under subMu so
// a concurrent cancel cannot close the channel mid-send.
func (s *Store) emit(sub *subscription) {
	content, err := s.FolderContent(sub.owner, sub.spaceID, sub.folderPath)
	if err != nil {
		return
	}

	s.subMu.Lock()
	defer s.subMu.Unlock()

	alive := false

	for _, candidate := range s.subs {
		if candidate == sub {
			alive = true
			break
		}
	}

	if !alive {
		return
	}

	// Conflate: drop the stale pending snapshot, then deliver.
	select {
	case <-sub.ch:
	default:
	}

	select {
	case sub.ch <- content:
	default:
	}
}
