package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"gavel/adapters/custody"
	pgAdapter "gavel/adapters/postgres"
	redisAdapter "gavel/adapters/redis"
	"gavel/adapters/sse"
	"gavel/engine"
	"gavel/models"
)

// ServerImpl 為HTTP層：驗證呼叫者身份、補上主機提供的邏輯時間與
// 附帶金額，再把操作交給引擎。寫入操作以每場拍賣一把分散式鎖
// 序列化，查詢則直接讀資料庫。
type ServerImpl struct {
	engine      *engine.Engine
	vault       *pgAdapter.Vault
	db          *gorm.DB
	redisClient *redis.Client
	producer    *redisAdapter.EventProducer
	consumer    *redisAdapter.EventConsumer
	sseManager  *sse.Manager

	// now 為主機端的邏輯時間來源，每次呼叫取值一次傳入引擎
	now func() uint64

	config ServerConfig
}

func NewServer(config ServerConfig) (*ServerImpl, error) {
	const op = "NewServer"

	// 初始化資料庫連線
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable&search_path=%s",
		config.DB.User, config.DB.Password, config.DB.Host, config.DB.Port, config.DB.Database, config.DB.Schema)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		NamingStrategy: schema.NamingStrategy{
			TablePrefix: config.DB.Schema + ".",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to connect to database, err=%w", op, err)
	}

	// 初始化Vault
	vault, err := pgAdapter.NewVault(db, engine.Address(config.Engine.EngineAddress))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create vault, err=%w", op, err)
	}
	if err := vault.Migrate(); err != nil {
		return nil, fmt.Errorf("[%s] Fail to migrate schema, err=%w", op, err)
	}

	// 初始化Redis連線
	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.Redis.Addr,
		Password: config.Redis.Password,
		DB:       config.Redis.DB,
	})

	// 初始化事件stream的producer與consumer
	producer, err := redisAdapter.NewEventProducer(redisClient, config.Redis.EventStream,
		redisAdapter.WithProducerLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create event producer, err=%w", op, err)
	}
	consumer, err := redisAdapter.NewEventConsumer(redisClient, config.Redis.EventStream,
		redisAdapter.WithConsumerLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create event consumer, err=%w", op, err)
	}

	// 初始化SSE管理器
	sseManager, err := sse.NewManager(consumer, sse.WithManagerLogger(slog.Default()))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create sse manager, err=%w", op, err)
	}

	// 初始化託管服務客戶端
	custodyClient, err := custody.NewClient(config.Custody.Endpoint, custody.WithTimeout(config.Custody.Timeout))
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create custody client, err=%w", op, err)
	}

	// 初始化拍賣引擎
	auctionEngine, err := engine.NewEngine(engine.Config{
		Owner:              engine.Address(config.Engine.Owner),
		EngineAddress:      engine.Address(config.Engine.EngineAddress),
		MinAuctionDuration: config.Engine.MinAuctionDuration,
		Vault:              vault,
		Custody:            custodyClient,
		Sink:               producer,
		Logger:             slog.Default(),
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to create auction engine, err=%w", op, err)
	}

	return &ServerImpl{
		engine:      auctionEngine,
		vault:       vault,
		db:          db,
		redisClient: redisClient,
		producer:    producer,
		consumer:    consumer,
		sseManager:  sseManager,
		now:         func() uint64 { return uint64(time.Now().Unix()) },
		config:      config,
	}, nil
}

func (impl *ServerImpl) Start() {
	impl.producer.Start()
	impl.consumer.Start()
	impl.sseManager.Start()
}

func (impl *ServerImpl) Close() {
	// 先關上游consumer，讓manager的廣播goroutine自然結束
	impl.consumer.Close()
	impl.sseManager.Wait()
	impl.sseManager.Done()
	impl.producer.Close()
}

// RegisterRoutes 掛載所有進入點
func (impl *ServerImpl) RegisterRoutes(router *gin.Engine) {
	router.POST("/auctions", impl.PostAuction)
	router.GET("/auctions", impl.GetAuctions)
	router.GET("/auctions/:auctionID", impl.GetAuction)
	router.POST("/auctions/:auctionID/bids", impl.PostBid)
	router.POST("/auctions/:auctionID/end", impl.PostEnd)
	router.GET("/auctions/:auctionID/events", impl.GetAuctionEvents)
	router.GET("/accounts/:address", impl.GetAccount)
	router.POST("/admin/pause", impl.PostPause)
	router.POST("/admin/unpause", impl.PostUnpause)
	router.POST("/admin/ownership", impl.PostOwnership)
}

// caller 驗證請求身份並組出本次呼叫的Call(呼叫者、邏輯時間、附帶金額)。
// 邏輯時間由這一層供給，引擎本身不讀時鐘。
func (impl *ServerImpl) caller(c *gin.Context, value uint64) (engine.Call, bool) {
	const op = "caller"
	tokenString, ok := tokenFromRequest(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"message": "missing access token"})
		return engine.Call{}, false
	}
	claims, err := ParseAndValidateToken(tokenString, impl.config.Auth.PublicKey)
	if err != nil {
		slog.Error("Fail to parse and validate token", slog.String("op", op), slog.Any("error", err))
		c.JSON(http.StatusUnauthorized, gin.H{"message": "invalid access token"})
		return engine.Call{}, false
	}
	return engine.Call{
		Caller: engine.Address(claims.Subject),
		Now:    impl.now(),
		Value:  value,
	}, true
}

// lockAuction 取得單場拍賣的寫入鎖，把同一場拍賣的操作序列化成單一寫者
func (impl *ServerImpl) lockAuction(c *gin.Context, auctionID uint64) (*redisAdapter.AuctionMutex, bool) {
	const op = "lockAuction"
	lockKey := fmt.Sprintf("%sauction:%d:lock", impl.config.Redis.KeyPrefix, auctionID)
	opts := []redisAdapter.MutexOption{}
	if impl.config.Redis.LockExpiry > 0 {
		opts = append(opts, redisAdapter.WithMutexExpiry(impl.config.Redis.LockExpiry))
	}
	mutex := redisAdapter.NewAuctionMutex(impl.redisClient, lockKey, opts...)
	if _, err := mutex.Lock(c.Request.Context()); err != nil {
		slog.Error("Fail to acquire auction lock", slog.String("op", op), slog.Uint64("auctionID", auctionID), slog.Any("error", err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "fail to acquire auction lock"})
		return nil, false
	}
	return mutex, true
}

func unlockAuction(mutex *redisAdapter.AuctionMutex) {
	if _, err := mutex.Unlock(); err != nil {
		slog.Warn("Fail to release auction lock", slog.Any("error", err))
	}
}

// Create a new auction
// (POST /auctions)
func (impl *ServerImpl) PostAuction(c *gin.Context) {
	var body struct {
		AssetRef      string `json:"assetRef" binding:"required"`
		AssetID       uint64 `json:"assetId"`
		StartingPrice uint64 `json:"startingPrice"`
		Duration      uint64 `json:"duration"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	call, ok := impl.caller(c, 0)
	if !ok {
		return
	}
	id, err := impl.engine.CreateAuction(c.Request.Context(), call,
		engine.Address(body.AssetRef), body.AssetID, body.StartingPrice, body.Duration)
	if err != nil {
		impl.writeError(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/auctions/%d", id))
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// Place a bid, the attached amount is the bid (payable)
// (POST /auctions/{auctionID}/bids)
func (impl *ServerImpl) PostBid(c *gin.Context) {
	auctionID, ok := auctionIDParam(c)
	if !ok {
		return
	}
	var body struct {
		Amount uint64 `json:"amount"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	call, ok := impl.caller(c, body.Amount)
	if !ok {
		return
	}
	mutex, ok := impl.lockAuction(c, auctionID)
	if !ok {
		return
	}
	defer unlockAuction(mutex)

	if err := impl.engine.PlaceBid(c.Request.Context(), call, auctionID); err != nil {
		impl.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auctionId": auctionID, "amount": body.Amount})
}

// Finalize an auction whose deadline has passed; anyone may call
// (POST /auctions/{auctionID}/end)
func (impl *ServerImpl) PostEnd(c *gin.Context) {
	auctionID, ok := auctionIDParam(c)
	if !ok {
		return
	}
	call, ok := impl.caller(c, 0)
	if !ok {
		return
	}
	mutex, ok := impl.lockAuction(c, auctionID)
	if !ok {
		return
	}
	defer unlockAuction(mutex)

	if err := impl.engine.EndAuction(c.Request.Context(), call, auctionID); err != nil {
		impl.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"auctionId": auctionID})
}

// Pause the contract (owner only)
// (POST /admin/pause)
func (impl *ServerImpl) PostPause(c *gin.Context) {
	call, ok := impl.caller(c, 0)
	if !ok {
		return
	}
	if err := impl.engine.Pause(call); err != nil {
		impl.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// Resume the contract (owner only)
// (POST /admin/unpause)
func (impl *ServerImpl) PostUnpause(c *gin.Context) {
	call, ok := impl.caller(c, 0)
	if !ok {
		return
	}
	if err := impl.engine.Unpause(call); err != nil {
		impl.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// Replace the contract owner (owner only)
// (POST /admin/ownership)
func (impl *ServerImpl) PostOwnership(c *gin.Context) {
	var body struct {
		NewOwner string `json:"newOwner" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	call, ok := impl.caller(c, 0)
	if !ok {
		return
	}
	if err := impl.engine.TransferOwnership(call, engine.Address(body.NewOwner)); err != nil {
		impl.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}

// Get auction details
// (GET /auctions/{auctionID})
func (impl *ServerImpl) GetAuction(c *gin.Context) {
	const op = "GetAuction"
	auctionID, ok := auctionIDParam(c)
	if !ok {
		return
	}
	var record models.Auction
	if result := impl.db.First(&record, "id = ?", auctionID); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "auction not found"})
			return
		}
		slog.Error("Fail to read auction", slog.String("op", op), slog.Any("error", result.Error))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}
	c.JSON(http.StatusOK, auctionResponse(record, impl.now()))
}

// List auctions
// (GET /auctions)
func (impl *ServerImpl) GetAuctions(c *gin.Context) {
	const op = "GetAuctions"
	now := impl.now()

	query := impl.db.Model(&models.Auction{}).Order("id")
	if c.Query("excludeEnded") == "true" {
		query = query.Where("status = ? AND ends_at >= ?", string(engine.StatusActive), now)
	}
	size := 50
	if raw := c.Query("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"message": "invalid size"})
			return
		}
		size = parsed
	}
	query = query.Limit(size)

	var records []models.Auction
	if result := query.Find(&records); result.Error != nil {
		slog.Error("Fail to list auctions", slog.String("op", op), slog.Any("error", result.Error))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}
	items := make([]gin.H, len(records))
	for i, record := range records {
		items[i] = auctionResponse(record, now)
	}
	c.JSON(http.StatusOK, gin.H{"count": len(items), "items": items})
}

// Get a native-currency account balance
// (GET /accounts/{address})
func (impl *ServerImpl) GetAccount(c *gin.Context) {
	const op = "GetAccount"
	address := c.Param("address")
	balance, err := impl.vault.Balance(c.Request.Context(), engine.Address(address))
	if err != nil {
		slog.Error("Fail to read account balance", slog.String("op", op), slog.Any("error", err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address, "balance": balance})
}

// Track auction notifications
// (GET /auctions/{auctionID}/events)
func (impl *ServerImpl) GetAuctionEvents(c *gin.Context) {
	const op = "GetAuctionEvents"
	auctionID, ok := auctionIDParam(c)
	if !ok {
		return
	}
	// 檢查拍賣是否存在
	var record models.Auction
	if result := impl.db.First(&record, "id = ?", auctionID); result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "auction not found"})
			return
		}
		slog.Error("Fail to read auction", slog.String("op", op), slog.Any("error", result.Error))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
		return
	}

	w := c.Writer
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Transfer-Encoding", "chunked")
	ch, err := impl.sseManager.Subscribe(auctionID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "event stream unavailable"})
		return
	}
	defer impl.sseManager.Unsubscribe(auctionID, ch)

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			c.SSEvent(string(event.Kind), event)
			w.Flush()
		// 定時送出空行，避免瀏覽器或中間代理斷開閒置連線
		case <-time.After(30 * time.Second):
			w.WriteString("\n\n")
			w.Flush()
		}
	}
}

// writeError 將合約錯誤代碼對應到HTTP狀態碼
func (impl *ServerImpl) writeError(c *gin.Context, err error) {
	var engineErr *engine.Error
	if errors.As(err, &engineErr) {
		status := http.StatusInternalServerError
		switch engineErr.Code {
		case engine.CodeUnauthorized:
			status = http.StatusForbidden
		case engine.CodeOperationPaused:
			status = http.StatusLocked
		case engine.CodeInvalidDuration, engine.CodeInvalidBid:
			status = http.StatusBadRequest
		case engine.CodeNotFound:
			status = http.StatusNotFound
		case engine.CodeAuctionClosed, engine.CodeAuctionStillActive, engine.CodeAlreadyFinalized:
			status = http.StatusConflict
		case engine.CodeAssetTransferFailed:
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"code": string(engineErr.Code), "message": engineErr.Message})
		return
	}
	if errors.Is(err, pgAdapter.ErrInsufficientFunds) {
		c.JSON(http.StatusPaymentRequired, gin.H{"message": "insufficient funds for the attached amount"})
		return
	}
	slog.Error("Operation failed", slog.Any("error", err))
	c.JSON(http.StatusInternalServerError, gin.H{"message": "internal error"})
}

func auctionIDParam(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("auctionID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid auction id"})
		return 0, false
	}
	return id, true
}

func auctionResponse(record models.Auction, now uint64) gin.H {
	var winner *string
	if record.Status == string(engine.StatusFinalized) && record.HighestBidder != nil {
		winner = lo.ToPtr(*record.HighestBidder)
	}
	return gin.H{
		"id":            record.ID,
		"seller":        record.Seller,
		"assetRef":      record.AssetRef,
		"assetId":       record.AssetID,
		"startingPrice": record.StartingPrice,
		"endsAt":        record.EndsAt,
		"highestBid":    record.HighestBid,
		"highestBidder": record.HighestBidder,
		"status":        record.Status,
		"isEnded":       now > record.EndsAt,
		"winner":        winner,
	}
}
