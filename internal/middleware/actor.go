package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/openfiscal/broker-backend/internal/pkg/logger"
	"github.com/openfiscal/broker-backend/internal/requestdata"
)

// ActorMiddleware maps the identity headers set by the upstream session
// layer into an explicit actor context. The core never reads session
// storage itself.
type ActorMiddleware struct {
	log *logger.Logger
}

func NewActorMiddleware(log *logger.Logger) *ActorMiddleware {
	return &ActorMiddleware{log: log.With("middleware", "ActorMiddleware")}
}

func (am *ActorMiddleware) RequireActor() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := uuid.Parse(c.GetHeader("X-User-ID"))
		if err != nil || userID == uuid.Nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid actor identity"})
			return
		}
		actor := &requestdata.Actor{
			UserID:     userID,
			AgencyCode: c.GetHeader("X-Agency-Code"),
		}
		c.Request = c.Request.WithContext(requestdata.WithActor(c.Request.Context(), actor))
		c.Next()
	}
}
