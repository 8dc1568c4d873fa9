// Package protocol defines the JSON application messages exchanged over
// the WebSocket transport and the dispatch registry that routes decoded
// requests to handlers.
package protocol

// Client request types.
const (
	TypeVerifySession       = "VERIFY_SESSION"
	TypeLogin               = "LOGIN"
	TypeRegister            = "REGISTER"
	TypeLogout              = "LOGOUT"
	TypeGetAvailablePlayers = "GET_AVAILABLE_PLAYERS"
	TypeChallenge           = "CHALLENGE"
	TypeAIChallenge         = "AI_CHALLENGE"
	TypeAcceptChallenge     = "ACCEPT_CHALLENGE"
	TypeDeclineChallenge    = "DECLINE_CHALLENGE"
	TypeCancelChallenge     = "CANCEL_CHALLENGE"
	TypeMove                = "MOVE"
	TypeResign              = "RESIGN"
	TypeDrawOffer           = "DRAW_OFFER"
	TypeDrawResponse        = "DRAW_RESPONSE"
	TypeRequestRematch      = "REQUEST_REMATCH"
	TypeGetGameState        = "GET_GAME_STATE"
	TypeGetGameHistory      = "GET_GAME_HISTORY"
	TypeGetLeaderboard      = "GET_LEADERBOARD"
	TypePing                = "PING"
	TypeChatMessage         = "CHAT_MESSAGE"
)

// Server response and broadcast types.
const (
	TypeSessionValid             = "SESSION_VALID"
	TypeSessionInvalid           = "SESSION_INVALID"
	TypeDuplicateSession         = "DUPLICATE_SESSION"
	TypeLoginResponse            = "LOGIN_RESPONSE"
	TypeRegisterResponse         = "REGISTER_RESPONSE"
	TypeLogoutResponse           = "LOGOUT_RESPONSE"
	TypePlayerList               = "PLAYER_LIST"
	TypeChallengeSent            = "CHALLENGE_SENT"
	TypeChallengeReceived        = "CHALLENGE_RECEIVED"
	TypeChallengeAccepted        = "CHALLENGE_ACCEPTED"
	TypeChallengeDeclined        = "CHALLENGE_DECLINED"
	TypeChallengeCancelled       = "CHALLENGE_CANCELLED"
	TypeChallengeDeclinedResp    = "CHALLENGE_DECLINED_RESPONSE"
	TypeChallengeCancelledResp   = "CHALLENGE_CANCELLED_RESPONSE"
	TypeAIChallengeSent          = "AI_CHALLENGE_SENT"
	TypeAIChallengeFailed        = "AI_CHALLENGE_FAILED"
	TypeMatchStarted             = "MATCH_STARTED"
	TypeMoveAccepted             = "MOVE_ACCEPTED"
	TypeMoveRejected             = "MOVE_REJECTED"
	TypeOpponentMove             = "OPPONENT_MOVE"
	TypeResignResponse           = "RESIGN_RESPONSE"
	TypeDrawOfferResponse        = "DRAW_OFFER_RESPONSE"
	TypeDrawOfferReceived        = "DRAW_OFFER_RECEIVED"
	TypeDrawResponseResponse     = "DRAW_RESPONSE_RESPONSE"
	TypeDrawResponseFailed       = "DRAW_RESPONSE_FAILED"
	TypeDrawDeclined             = "DRAW_DECLINED"
	TypeGameEnded                = "GAME_ENDED"
	TypeGameState                = "GAME_STATE"
	TypeGameHistory              = "GAME_HISTORY"
	TypeLeaderboard              = "LEADERBOARD"
	TypeRematchRequestReceived   = "REMATCH_REQUEST_RECEIVED"
	TypeRematchRequestResponse   = "REMATCH_REQUEST_RESPONSE"
	TypeChatMessageReceived      = "CHAT_MESSAGE_RECEIVED"
	TypePong                     = "PONG"
	TypeError                    = "ERROR"
)

// Stable error codes carried in ERROR responses.
const (
	ErrInvalidMessage   = "INVALID_MESSAGE"
	ErrParse            = "PARSE_ERROR"
	ErrUnknownType      = "UNKNOWN_MESSAGE_TYPE"
	ErrInternal         = "INTERNAL_ERROR"
	ErrInvalidSession   = "INVALID_SESSION"
	ErrMissingField     = "MISSING_FIELD"
	ErrUserNotFound     = "USER_NOT_FOUND"
	ErrUserOffline      = "USER_OFFLINE"
	ErrUserBusy         = "USER_BUSY"
	ErrAlreadyInGame    = "ALREADY_IN_GAME"
	ErrPendingChallenge = "PENDING_CHALLENGE"
	ErrChallengeMissing = "CHALLENGE_NOT_FOUND"
	ErrInvalidChallenge = "INVALID_CHALLENGE"
	ErrGameNotFound     = "GAME_NOT_FOUND"
	ErrNotInGame        = "NOT_IN_GAME"
	ErrDatabase         = "DATABASE_ERROR"
)

// Game results as stored and broadcast.
const (
	ResultWhiteWin = "WHITE_WIN"
	ResultBlackWin = "BLACK_WIN"
	ResultDraw     = "DRAW"
	ResultAborted  = "ABORTED"
)
