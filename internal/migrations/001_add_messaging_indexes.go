package migrations

import (
	"gorm.io/gorm"
)

// Migration001AddMessagingIndexes adds composite indexes for the messaging
// hot paths that AutoMigrate's single-column tags do not cover:
// 1. History/polling reads on (conversation_id, created_at)
// 2. Per-sender lookups on (sender_id, created_at)
// 3. Unread counting on (is_read, conversation_id)
// 4. Inbox ordering on (user1_id / user2_id, updated_at)
// 5. Horizon lookups on (user_id, hidden_at)
//
// All indexes are idempotent (IF NOT EXISTS) for safe re-runs.
func Migration001AddMessagingIndexes() Migration {
	return Migration{
		ID:   "001_add_messaging_indexes",
		Name: "Add composite indexes for messaging hot paths",
		Up: func(db *gorm.DB) error {
			stmts := []string{
				`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
					ON private_messages (conversation_id, created_at DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_messages_sender_created
					ON private_messages (sender_id, created_at DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_messages_read_conversation
					ON private_messages (is_read, conversation_id)`,
				`CREATE INDEX IF NOT EXISTS idx_conversations_user1_activity
					ON conversations (user1_id, updated_at DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_conversations_user2_activity
					ON conversations (user2_id, updated_at DESC)`,
				`CREATE INDEX IF NOT EXISTS idx_hidden_user_hidden_at
					ON conversation_hiddens (user_id, hidden_at DESC)`,
			}
			for _, stmt := range stmts {
				if err := db.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return nil
		},
		Down: func(db *gorm.DB) error {
			stmts := []string{
				`DROP INDEX IF EXISTS idx_hidden_user_hidden_at`,
				`DROP INDEX IF EXISTS idx_conversations_user2_activity`,
				`DROP INDEX IF EXISTS idx_conversations_user1_activity`,
				`DROP INDEX IF EXISTS idx_messages_read_conversation`,
				`DROP INDEX IF EXISTS idx_messages_sender_created`,
				`DROP INDEX IF EXISTS idx_messages_conversation_created`,
			}
			for _, stmt := range stmts {
				if err := db.Exec(stmt).Error; err != nil {
					return err
				}
			}
			return nil
		},
	}
}
