// Package chat connects to Twitch chat and turns protocol messages into
// domain events.
//
// A Session is one IRC connection (NewTwitchSession wraps go-twitch-irc). A
// Listener owns a Session, translates each message with Translate and submits
// the result to the store actor:
//   - PRIVMSG becomes AddMessage.
//   - CLEARMSG becomes DeleteMessage.
//   - CLEARCHAT with a target user becomes BanUser, or SuspendUser when it
//     carries a ban duration. A CLEARCHAT without a target is ignored.
//
// Credentials: with TWITCH_BOT_USERNAME and TWITCH_OAUTH_TOKEN unset the
// session logs in anonymously, which is enough to read chat.
package chat
