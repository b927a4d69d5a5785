package models

import "time"

// TokenPair — пара токенов, выдаваемая при входе и обновлении сессии.
//
// Описание:
//   - AccessToken — короткоживущий JWT (минуты) для доступа к API, на сервере
//     не хранится, валидность определяется только подписью и сроком;
//   - RefreshToken — долгоживущий JWT (дни), подписанный отдельным секретом;
//     в хранилище лежит его хэш, предъявление токена сверяется с ним;
//   - AccessExpiresAt — момент истечения access-токена (UTC).
type TokenPair struct {
	AccessToken     string
	RefreshToken    string
	AccessExpiresAt time.Time
}
